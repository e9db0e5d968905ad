package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttrenholm/gatehouse/internal/models"
	"github.com/ttrenholm/gatehouse/pkg/auth"
)

func newAccountEnv(t *testing.T, accounts ...*models.Account) (*authTestEnv, *AccountService) {
	t.Helper()
	env := newAuthTestEnv(t, accounts...)
	svc := NewAccountService(env.accounts, env.sessions, newTestLogger())
	svc.SetClock(env.clock.Now)
	return env, svc
}

func TestAccountService_CreateAccount(t *testing.T) {
	env, svc := newAccountEnv(t)

	created, err := svc.CreateAccount(context.Background(), "alice", "alice@example.com", "CorrectHorse1")

	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.StatusUnverified, created.Status)

	got := env.account(t, created.ID)
	assert.NoError(t, auth.ComparePassword(got.PasswordHash, "CorrectHorse1"))
}

func TestAccountService_CreateAccount_Duplicate(t *testing.T) {
	existing := NewTestAccount("alice", "CorrectHorse1")
	_, svc := newAccountEnv(t, existing)

	_, err := svc.CreateAccount(context.Background(), "alice", "other@example.com", "CorrectHorse1")
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.CreateAccount(context.Background(), "alice2", existing.Email, "CorrectHorse1")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAccountService_CreateAccount_WeakPassword(t *testing.T) {
	_, svc := newAccountEnv(t)

	_, err := svc.CreateAccount(context.Background(), "alice", "alice@example.com", "short")
	assert.Error(t, err)
}

func TestAccountService_ChangePassword(t *testing.T) {
	account := NewTestAccount("alice", "OldPassword1")
	env, svc := newAccountEnv(t, account)
	ctx := context.Background()

	_, _, err := env.sessions.CreateSession(ctx, account.ID)
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	require.NoError(t, svc.ChangePassword(ctx, account.ID, "OldPassword1", "NewPassword2"))

	got := env.account(t, account.ID)
	assert.NoError(t, auth.ComparePassword(got.PasswordHash, "NewPassword2"))
	require.NotNil(t, got.PasswordChangedAt)
	assert.Equal(t, env.clock.Now(), *got.PasswordChangedAt)

	// Old hash moved into history.
	require.Len(t, got.PasswordHistory, 1)
	assert.NoError(t, auth.ComparePassword(got.PasswordHistory[0], "OldPassword1"))

	// Existing sessions are gone.
	count, err := env.sessions.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAccountService_ChangePassword_WrongCurrent(t *testing.T) {
	account := NewTestAccount("alice", "OldPassword1")
	_, svc := newAccountEnv(t, account)

	err := svc.ChangePassword(context.Background(), account.ID, "NotTheOldOne1", "NewPassword2")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAccountService_ChangePassword_RejectsRecentReuse(t *testing.T) {
	account := NewTestAccount("alice", "OldPassword1")
	_, svc := newAccountEnv(t, account)
	ctx := context.Background()

	// Reusing the current password is rejected outright.
	err := svc.ChangePassword(ctx, account.ID, "OldPassword1", "OldPassword1")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	// As is anything still in the history window.
	require.NoError(t, svc.ChangePassword(ctx, account.ID, "OldPassword1", "NewPassword2"))
	err = svc.ChangePassword(ctx, account.ID, "NewPassword2", "OldPassword1")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAccountService_ChangePassword_HistoryWindowRollsOff(t *testing.T) {
	account := NewTestAccount("alice", "Password0aa")
	env, svc := newAccountEnv(t, account)
	ctx := context.Background()

	// Rotate through more passwords than history retains.
	passwords := []string{"Password1aa", "Password2aa", "Password3aa", "Password4aa", "Password5aa", "Password6aa"}
	current := "Password0aa"
	for _, next := range passwords {
		require.NoError(t, svc.ChangePassword(ctx, account.ID, current, next))
		current = next
	}

	got := env.account(t, account.ID)
	assert.Len(t, got.PasswordHistory, models.PasswordHistoryLimit)

	// The original rolled off and is usable again.
	assert.NoError(t, svc.ChangePassword(ctx, account.ID, current, "Password0aa"))
}

func TestAccountService_ChangePassword_WeakReplacement(t *testing.T) {
	account := NewTestAccount("alice", "OldPassword1")
	_, svc := newAccountEnv(t, account)

	err := svc.ChangePassword(context.Background(), account.ID, "OldPassword1", "alllowercase")
	assert.Error(t, err)
}

func TestAccountService_UpdateStatus(t *testing.T) {
	account := NewTestAccount("alice", "CorrectHorse1")
	account.Status = models.StatusUnverified
	env, svc := newAccountEnv(t, account)
	ctx := context.Background()

	require.NoError(t, svc.UpdateStatus(ctx, account.ID, models.StatusActive))
	assert.Equal(t, models.StatusActive, env.account(t, account.ID).Status)
}

func TestAccountService_UpdateStatus_SuspensionEndsSessions(t *testing.T) {
	account := NewTestAccount("alice", "CorrectHorse1")
	env, svc := newAccountEnv(t, account)
	ctx := context.Background()

	_, _, err := env.sessions.CreateSession(ctx, account.ID)
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, account.ID, models.StatusSuspended))
	assert.Equal(t, models.StatusSuspended, env.account(t, account.ID).Status)

	count, err := env.sessions.CountActive(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAccountService_UpdateStatus_RejectsUnknown(t *testing.T) {
	account := NewTestAccount("alice", "CorrectHorse1")
	_, svc := newAccountEnv(t, account)

	err := svc.UpdateStatus(context.Background(), account.ID, "banned")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAccountService_UpdateStatus_UnknownAccount(t *testing.T) {
	_, svc := newAccountEnv(t)

	err := svc.UpdateStatus(context.Background(), "missing", models.StatusActive)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
