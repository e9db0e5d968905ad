package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttrenholm/gatehouse/internal/models"
	pkgauth "github.com/ttrenholm/gatehouse/pkg/auth"
)

func TestAccountHandler_ChangePassword(t *testing.T) {
	var gotAccountID, gotCurrent, gotNew string
	svc := &MockAccountService{
		ChangePasswordFunc: func(ctx context.Context, accountID, currentPassword, newPassword string) error {
			gotAccountID = accountID
			gotCurrent = currentPassword
			gotNew = newPassword
			return nil
		},
	}
	handler := NewAccountHandler(svc)

	req := newJSONRequest(t, "POST", "/account/password", ChangePasswordRequest{
		CurrentPassword: "OldPassword1",
		NewPassword:     "NewPassword2",
	})
	req = authenticate(req, "acct-42", "sess-1")
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "acct-42", gotAccountID)
	assert.Equal(t, "OldPassword1", gotCurrent)
	assert.Equal(t, "NewPassword2", gotNew)
}

func TestAccountHandler_ChangePassword_Unauthenticated(t *testing.T) {
	called := false
	svc := &MockAccountService{
		ChangePasswordFunc: func(ctx context.Context, accountID, currentPassword, newPassword string) error {
			called = true
			return nil
		},
	}
	handler := NewAccountHandler(svc)

	req := newJSONRequest(t, "POST", "/account/password", ChangePasswordRequest{
		CurrentPassword: "OldPassword1",
		NewPassword:     "NewPassword2",
	})
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAccountHandler_ChangePassword_WrongCurrentPassword(t *testing.T) {
	svc := &MockAccountService{
		ChangePasswordFunc: func(ctx context.Context, accountID, currentPassword, newPassword string) error {
			return models.ErrInvalidCredentials
		},
	}
	handler := NewAccountHandler(svc)

	req := newJSONRequest(t, "POST", "/account/password", ChangePasswordRequest{
		CurrentPassword: "WrongPassword1",
		NewPassword:     "NewPassword2",
	})
	req = authenticate(req, "acct-42", "sess-1")
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Current password is incorrect")
}

func TestAccountHandler_ChangePassword_RecentReuse(t *testing.T) {
	svc := &MockAccountService{
		ChangePasswordFunc: func(ctx context.Context, accountID, currentPassword, newPassword string) error {
			return models.ErrBadRequest
		},
	}
	handler := NewAccountHandler(svc)

	req := newJSONRequest(t, "POST", "/account/password", ChangePasswordRequest{
		CurrentPassword: "OldPassword1",
		NewPassword:     "OldPassword1",
	})
	req = authenticate(req, "acct-42", "sess-1")
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "used recently")
}

func TestAccountHandler_ChangePassword_WeakReplacement(t *testing.T) {
	svc := &MockAccountService{
		ChangePasswordFunc: func(ctx context.Context, accountID, currentPassword, newPassword string) error {
			return &pkgauth.PasswordValidationError{Errors: []string{"password must contain at least one digit"}}
		},
	}
	handler := NewAccountHandler(svc)

	req := newJSONRequest(t, "POST", "/account/password", ChangePasswordRequest{
		CurrentPassword: "OldPassword1",
		NewPassword:     "allletters",
	})
	req = authenticate(req, "acct-42", "sess-1")
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not meet requirements")
}

func TestAccountHandler_ChangePassword_RejectsShortPassword(t *testing.T) {
	called := false
	svc := &MockAccountService{
		ChangePasswordFunc: func(ctx context.Context, accountID, currentPassword, newPassword string) error {
			called = true
			return nil
		},
	}
	handler := NewAccountHandler(svc)

	req := newJSONRequest(t, "POST", "/account/password", ChangePasswordRequest{
		CurrentPassword: "OldPassword1",
		NewPassword:     "short",
	})
	req = authenticate(req, "acct-42", "sess-1")
	rec := httptest.NewRecorder()
	handler.ChangePassword(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}
