package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/models"
	pkgauth "github.com/ttrenholm/gatehouse/pkg/auth"
)

// AccountStore defines the durable account operations the auth core needs:
// point lookups and atomic field updates only.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	RecordLoginFailure(ctx context.Context, id string, failedCount int, failedAt time.Time, locked bool, lockExpiresAt *time.Time) error
	ClearLoginFailures(ctx context.Context, id string) error
	ClearExpiredLock(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id, status string) error
	SetTwoFactorCode(ctx context.Context, id, codeHash string, expiresAt time.Time) error
	ClearTwoFactorCode(ctx context.Context, id string, resetFailures bool) error
	RecordTwoFactorFailure(ctx context.Context, id string, failedCount int, locked bool, lockExpiresAt *time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, history []string, changedAt time.Time) error
}

// ChallengeIssuer starts a two-factor challenge for an account that passed
// the password check: generate and store a code, dispatch it out-of-band,
// and return the challenge token.
type ChallengeIssuer interface {
	Issue(ctx context.Context, account *models.Account) (challengeToken string, err error)
}

// Login result statuses, rendered directly by the transport layer.
const (
	LoginStatusSuccess    = "success"
	LoginStatusTwoFactor  = "2fa_required"
	LoginStatusLocked     = "locked"
	LoginStatusUnverified = "unverified"
	LoginStatusFailed     = "failed"
)

// LoginResult is the outcome of an authentication or verification call.
type LoginResult struct {
	Status         string            `json:"status"`
	Session        *models.Session   `json:"session,omitempty"`
	Tokens         *models.TokenPair `json:"tokens,omitempty"`
	ChallengeToken string            `json:"challenge_token,omitempty"`
	Message        string            `json:"message,omitempty"`
}

// Generic caller-facing copy. Rejections never reveal which field was wrong;
// locked/unverified messages are deliberately specific product behavior.
const (
	msgInvalidCredentials = "Invalid credentials"
	msgLocked             = "Access to this account is temporarily restricted. Please try again later."
	msgUnverified         = "Your account has not been verified yet. Please complete verification first."
	msgTwoFactorRequired  = "A verification code has been sent to your email"
)

// LockoutPolicy holds the password-lockout thresholds.
type LockoutPolicy struct {
	MaxFailures   int           // consecutive failures before the account locks
	FailureWindow time.Duration // window within which failures are consecutive
	LockDuration  time.Duration
}

// LoginService implements credential verification with progressive lockout.
type LoginService struct {
	accounts AccountStore
	issuer   ChallengeIssuer
	sessions *SessionService
	audit    *AuditService
	timing   *auth.TimingDelay
	policy   LockoutPolicy
	logger   *slog.Logger

	now func() time.Time
}

func NewLoginService(
	accounts AccountStore,
	issuer ChallengeIssuer,
	sessions *SessionService,
	audit *AuditService,
	timing *auth.TimingDelay,
	policy LockoutPolicy,
	logger *slog.Logger,
) *LoginService {
	return &LoginService{
		accounts: accounts,
		issuer:   issuer,
		sessions: sessions,
		audit:    audit,
		timing:   timing,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook only.
func (s *LoginService) SetClock(now func() time.Time) { s.now = now }

// Authenticate verifies username/password and drives the lockout state
// machine. Auth outcomes (failed, locked, unverified, 2fa_required, success)
// come back as a LoginResult; only dependency failures return an error.
func (s *LoginService) Authenticate(ctx context.Context, username, password string, reqCtx RequestContext) (*LoginResult, error) {
	start := time.Now()
	username = strings.TrimSpace(username)

	if username == "" || password == "" {
		s.audit.Record(ctx, nil, username, models.AttemptOutcomeFailed, "missing fields", reqCtx)
		s.timing.WaitFrom(start, false)
		return &LoginResult{Status: LoginStatusFailed, Message: msgInvalidCredentials}, nil
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit.Record(ctx, nil, username, models.AttemptOutcomeFailed, "invalid username", reqCtx)
			s.timing.WaitFrom(start, false)
			return &LoginResult{Status: LoginStatusFailed, Message: msgInvalidCredentials}, nil
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, models.ErrDependencyUnavailable
	}

	now := s.now()

	// An expired lock clears itself, both failure counters included, before
	// any checks. The next failure of either kind starts a fresh streak.
	if account.LockExpired(now) {
		if err := s.accounts.ClearExpiredLock(ctx, account.ID); err != nil {
			s.logger.Error("failed to clear expired lock",
				slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, models.ErrDependencyUnavailable
		}
		account.Locked = false
		account.LockExpiresAt = nil
		account.FailedLoginCount = 0
		account.LastFailedLoginAt = nil
		account.TwoFactorFailedCount = 0
	}

	// Lock state is the authoritative read at decision time.
	if account.IsLocked(now) {
		s.audit.Record(ctx, &account.ID, username, models.AttemptOutcomeLocked, "account locked", reqCtx)
		s.timing.WaitFrom(start, false)
		return &LoginResult{Status: LoginStatusLocked, Message: msgLocked}, nil
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		return s.handlePasswordFailure(ctx, account, username, now, start, reqCtx)
	}

	// Correct password resets the counter and lock state.
	if account.FailedLoginCount > 0 || account.Locked {
		if err := s.accounts.ClearLoginFailures(ctx, account.ID); err != nil {
			s.logger.Error("failed to reset failure counter",
				slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, models.ErrDependencyUnavailable
		}
	}

	if account.Status == models.StatusUnverified {
		s.audit.Record(ctx, &account.ID, username, models.AttemptOutcomeUnverified, "account unverified", reqCtx)
		s.timing.WaitFrom(start, false)
		return &LoginResult{Status: LoginStatusUnverified, Message: msgUnverified}, nil
	}
	if account.Status == models.StatusSuspended || account.Status == models.StatusDeleted {
		s.audit.Record(ctx, &account.ID, username, models.AttemptOutcomeFailed, "account "+account.Status, reqCtx)
		s.timing.WaitFrom(start, false)
		return &LoginResult{Status: LoginStatusFailed, Message: msgInvalidCredentials}, nil
	}

	if account.TwoFactorEnabled {
		challengeToken, err := s.issuer.Issue(ctx, account)
		if err != nil {
			// Code dispatch failed; pending state was rolled back by the
			// issuer. Retryable, not an authentication failure.
			return nil, err
		}
		// Login step succeeded; full authentication is pending the code.
		s.audit.Record(ctx, &account.ID, username, models.AttemptOutcomeSuccess, "password accepted, code sent", reqCtx)
		s.timing.Wait(true)
		return &LoginResult{
			Status:         LoginStatusTwoFactor,
			ChallengeToken: challengeToken,
			Message:        msgTwoFactorRequired,
		}, nil
	}

	session, tokens, err := s.sessions.CreateSession(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &account.ID, username, models.AttemptOutcomeSuccess, "login", reqCtx)
	s.logger.Info("account logged in", slog.String("account_id", account.ID))
	s.timing.Wait(true)

	return &LoginResult{Status: LoginStatusSuccess, Session: session, Tokens: tokens}, nil
}

// handlePasswordFailure advances the consecutive-failure counter. Failures
// more than FailureWindow after the previous one restart the count at 1;
// crossing MaxFailures locks the account for LockDuration. Two concurrent
// failures may lose a counter update, which is tolerated.
func (s *LoginService) handlePasswordFailure(ctx context.Context, account *models.Account, username string, now, start time.Time, reqCtx RequestContext) (*LoginResult, error) {
	failedCount := account.FailedLoginCount + 1
	if account.LastFailedLoginAt != nil && now.Sub(*account.LastFailedLoginAt) > s.policy.FailureWindow {
		failedCount = 1
	}

	locked := failedCount > s.policy.MaxFailures
	var lockExpiresAt *time.Time
	if locked {
		expiry := now.Add(s.policy.LockDuration)
		lockExpiresAt = &expiry
	}

	if err := s.accounts.RecordLoginFailure(ctx, account.ID, failedCount, now, locked, lockExpiresAt); err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrDependencyUnavailable
	}

	if locked {
		s.logger.Warn("account locked after repeated failures",
			slog.String("account_id", account.ID),
			slog.Int("failed_count", failedCount))
		s.audit.Record(ctx, &account.ID, username, models.AttemptOutcomeLocked, "too many failed attempts", reqCtx)
		s.timing.WaitFrom(start, false)
		return &LoginResult{Status: LoginStatusLocked, Message: msgLocked}, nil
	}

	s.audit.Record(ctx, &account.ID, username, models.AttemptOutcomeFailed, "invalid password", reqCtx)
	s.timing.WaitFrom(start, false)
	return &LoginResult{Status: LoginStatusFailed, Message: msgInvalidCredentials}, nil
}
