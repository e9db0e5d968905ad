package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/models"
)

// Authenticator re-runs credential verification. Used by Resend, which is
// specified as a fresh authentication with the original credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string, reqCtx RequestContext) (*LoginResult, error)
}

// TwoFactorPolicy holds the challenge thresholds. The 2FA lockout is an
// independent state machine from the password lockout: its own counter, a
// higher threshold, and a longer lock.
type TwoFactorPolicy struct {
	CodeTTL          time.Duration // how long an issued code stays valid
	MaxCodeFailures  int           // consecutive wrong codes before locking
	CodeLockDuration time.Duration
}

const (
	msgChallengeInvalid = "Invalid or expired verification session. Please log in again."
	msgCodeExpired      = "The verification code has expired. Please request a new one."
	msgCodeInvalid      = "The verification code is incorrect"
)

// TwoFactorService issues and verifies the emailed 6-digit challenge codes.
type TwoFactorService struct {
	accounts AccountStore
	tm       *auth.TokenManager
	email    EmailService
	sessions *SessionService
	audit    *AuditService
	policy   TwoFactorPolicy
	logger   *slog.Logger

	// set after construction to break the Login <-> TwoFactor cycle
	authenticator Authenticator

	now func() time.Time
}

func NewTwoFactorService(
	accounts AccountStore,
	tm *auth.TokenManager,
	email EmailService,
	sessions *SessionService,
	audit *AuditService,
	policy TwoFactorPolicy,
	logger *slog.Logger,
) *TwoFactorService {
	return &TwoFactorService{
		accounts: accounts,
		tm:       tm,
		email:    email,
		sessions: sessions,
		audit:    audit,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

// SetAuthenticator wires the credential engine in after both services exist.
func (s *TwoFactorService) SetAuthenticator(a Authenticator) { s.authenticator = a }

// SetClock overrides the time source. Test hook only.
func (s *TwoFactorService) SetClock(now func() time.Time) { s.now = now }

// Issue generates a fresh code for an account that passed the password
// check: store the SHA-256 hash with its expiry, dispatch the cleartext out
// of band, and mint the 5-minute challenge token. A failed dispatch rolls
// the pending code back so no undeliverable code stays active.
func (s *TwoFactorService) Issue(ctx context.Context, account *models.Account) (string, error) {
	code, err := auth.GenerateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate two-factor code: %w", err)
	}

	expiresAt := s.now().Add(s.policy.CodeTTL)
	if err := s.accounts.SetTwoFactorCode(ctx, account.ID, auth.HashCode(code), expiresAt); err != nil {
		s.logger.Error("failed to store two-factor code",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return "", models.ErrDependencyUnavailable
	}

	if err := s.email.SendTwoFactorCode(ctx, account.Email, code); err != nil {
		s.logger.Error("failed to dispatch two-factor code",
			slog.String("account_id", account.ID), slog.Any("error", err))
		if rbErr := s.accounts.ClearTwoFactorCode(ctx, account.ID, false); rbErr != nil {
			s.logger.Error("failed to roll back pending two-factor code",
				slog.String("account_id", account.ID), slog.Any("error", rbErr))
		}
		return "", models.ErrDependencyUnavailable
	}

	challengeToken, err := s.tm.GenerateChallengeToken(account.ID)
	if err != nil {
		return "", fmt.Errorf("failed to generate challenge token: %w", err)
	}

	s.logger.Info("two-factor code issued", slog.String("account_id", account.ID))
	return challengeToken, nil
}

// Verify checks a submitted code against the pending challenge.
func (s *TwoFactorService) Verify(ctx context.Context, challengeToken, code string, reqCtx RequestContext) (*LoginResult, error) {
	claims, err := s.tm.ValidateTokenOfType(challengeToken, models.TokenTypeChallenge)
	if err != nil {
		return &LoginResult{Status: LoginStatusFailed, Message: msgChallengeInvalid}, nil
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &LoginResult{Status: LoginStatusFailed, Message: msgChallengeInvalid}, nil
		}
		s.logger.Error("failed to look up account for verification", slog.Any("error", err))
		return nil, models.ErrDependencyUnavailable
	}

	now := s.now()

	// An expired lock clears itself, both failure counters included, the
	// same way the password path does.
	if account.LockExpired(now) {
		if err := s.accounts.ClearExpiredLock(ctx, account.ID); err != nil {
			return nil, models.ErrDependencyUnavailable
		}
		account.Locked = false
		account.LockExpiresAt = nil
		account.FailedLoginCount = 0
		account.TwoFactorFailedCount = 0
	}

	if account.IsLocked(now) {
		remaining := account.LockExpiresAt.Sub(now).Round(time.Minute)
		s.audit.Record(ctx, &account.ID, account.Username, models.AttemptOutcomeLocked, "account locked", reqCtx)
		return &LoginResult{
			Status:  LoginStatusLocked,
			Message: fmt.Sprintf("Too many failed attempts. Try again in %s.", remaining),
		}, nil
	}

	if !account.HasPendingCode(now) {
		s.audit.Record(ctx, &account.ID, account.Username, models.AttemptOutcomeFailed, "no valid code pending", reqCtx)
		return &LoginResult{Status: LoginStatusFailed, Message: msgCodeExpired}, nil
	}

	if !auth.CompareCodeHash(*account.TwoFactorCodeHash, code) {
		return s.handleCodeFailure(ctx, account, now, reqCtx)
	}

	if err := s.accounts.ClearTwoFactorCode(ctx, account.ID, true); err != nil {
		s.logger.Error("failed to clear verified code",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrDependencyUnavailable
	}

	session, tokens, err := s.sessions.CreateSession(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &account.ID, account.Username, models.AttemptOutcomeSuccess, "two-factor verified", reqCtx)
	s.logger.Info("two-factor verification succeeded", slog.String("account_id", account.ID))

	return &LoginResult{Status: LoginStatusSuccess, Session: session, Tokens: tokens}, nil
}

// Resend re-runs authentication with the original credentials, which
// re-issues a fresh code and challenge token. It never resets the 2FA
// failure counter: only a correct code does that.
func (s *TwoFactorService) Resend(ctx context.Context, username, password string, reqCtx RequestContext) (*LoginResult, error) {
	return s.authenticator.Authenticate(ctx, username, password, reqCtx)
}

// handleCodeFailure advances the independent 2FA failure counter; at the
// threshold the account locks for CodeLockDuration and the pending code is
// cleared so the lock can't be raced with more guesses.
func (s *TwoFactorService) handleCodeFailure(ctx context.Context, account *models.Account, now time.Time, reqCtx RequestContext) (*LoginResult, error) {
	failedCount := account.TwoFactorFailedCount + 1

	if failedCount >= s.policy.MaxCodeFailures {
		expiry := now.Add(s.policy.CodeLockDuration)
		if err := s.accounts.RecordTwoFactorFailure(ctx, account.ID, failedCount, true, &expiry); err != nil {
			s.logger.Error("failed to record two-factor lockout",
				slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, models.ErrDependencyUnavailable
		}
		if err := s.accounts.ClearTwoFactorCode(ctx, account.ID, false); err != nil {
			s.logger.Error("failed to clear code on lockout",
				slog.String("account_id", account.ID), slog.Any("error", err))
		}
		s.logger.Warn("account locked after repeated code failures",
			slog.String("account_id", account.ID),
			slog.Int("failed_count", failedCount))
		s.audit.Record(ctx, &account.ID, account.Username, models.AttemptOutcomeLocked, "too many invalid codes", reqCtx)
		return &LoginResult{Status: LoginStatusLocked, Message: msgLocked}, nil
	}

	if err := s.accounts.RecordTwoFactorFailure(ctx, account.ID, failedCount, false, nil); err != nil {
		s.logger.Error("failed to record two-factor failure",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrDependencyUnavailable
	}

	s.audit.Record(ctx, &account.ID, account.Username, models.AttemptOutcomeFailed, "invalid code", reqCtx)
	return &LoginResult{Status: LoginStatusFailed, Message: msgCodeInvalid}, nil
}
