package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/models"
	"github.com/ttrenholm/gatehouse/internal/registry"
	pkglogger "github.com/ttrenholm/gatehouse/pkg/logger"
)

// SessionPolicy holds the session-lifetime knobs. Sliding expiration and
// refresh-token rotation are policy, not hardwired behavior.
type SessionPolicy struct {
	SessionTTL time.Duration
	// RotateRefreshToken mints a new refresh token on every refresh.
	RotateRefreshToken bool
	// SlidingSessions renews the registry TTL on Touch.
	SlidingSessions bool
}

// SessionService registers sessions in the shared registry, mints the token
// pair layered on top of them, and broadcasts lifecycle events so every
// replica can keep its live count current.
type SessionService struct {
	store       registry.SessionStore
	accounts    AccountStore
	tm          *auth.TokenManager
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	channel     string
	policy      SessionPolicy

	now func() time.Time
}

func NewSessionService(
	store registry.SessionStore,
	accounts AccountStore,
	tm *auth.TokenManager,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
	channel string,
	policy SessionPolicy,
) *SessionService {
	return &SessionService{
		store:       store,
		accounts:    accounts,
		tm:          tm,
		auditLogger: auditLogger,
		logger:      logger,
		channel:     channel,
		policy:      policy,
		now:         time.Now,
	}
}

// SetClock overrides the time source. Test hook only.
func (s *SessionService) SetClock(now func() time.Time) { s.now = now }

// CreateSession writes a new session key to the registry, publishes the
// login event, and mints the access/refresh pair. A registry outage fails
// the operation explicitly; it is never masked as an authentication failure.
func (s *SessionService) CreateSession(ctx context.Context, accountID string) (*models.Session, *models.TokenPair, error) {
	session := &models.Session{
		ID:        uuid.New().String(),
		AccountID: accountID,
		CreatedAt: s.now(),
	}

	key := registry.SessionKeyPrefix + session.ID
	if err := s.store.Set(ctx, key, accountID, s.policy.SessionTTL); err != nil {
		s.logger.Error("failed to register session",
			slog.String("account_id", accountID), slog.Any("error", err))
		return nil, nil, models.ErrDependencyUnavailable
	}

	s.publish(ctx, session.ID, models.SessionActionLogin)

	accessToken, err := s.tm.GenerateAccessToken(accountID, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.tm.GenerateRefreshToken(accountID, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	s.auditLogger.LogSessionEvent(models.SessionActionLogin, session.ID, accountID)

	return session, &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh verifies the refresh token and mints a new access token. A token
// issued before the account's last password change is rejected: changing the
// password invalidates every outstanding token. The refresh token itself is
// only rotated when policy says so.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.tm.ValidateTokenOfType(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, models.ErrTokenInvalid
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		s.logger.Error("failed to look up account for refresh", slog.Any("error", err))
		return nil, models.ErrDependencyUnavailable
	}

	if account.PasswordChangedAt != nil && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.Before(*account.PasswordChangedAt) {
			s.logger.Info("refresh blocked: token predates password change",
				slog.String("account_id", account.ID))
			return nil, models.ErrTokenStale
		}
	}

	accessToken, err := s.tm.GenerateAccessToken(account.ID, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	pair := &models.TokenPair{AccessToken: accessToken}
	if s.policy.RotateRefreshToken {
		rotated, err := s.tm.GenerateRefreshToken(account.ID, claims.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
		}
		pair.RefreshToken = rotated
	}

	return pair, nil
}

// Terminate removes the session key and publishes the logout event.
// Idempotent: terminating an absent or already-expired session is a no-op.
func (s *SessionService) Terminate(ctx context.Context, sessionID string) error {
	key := registry.SessionKeyPrefix + sessionID
	if err := s.store.Del(ctx, key); err != nil {
		s.logger.Error("failed to terminate session",
			slog.String("session_id", sessionID), slog.Any("error", err))
		return models.ErrDependencyUnavailable
	}

	s.publish(ctx, sessionID, models.SessionActionLogout)
	s.auditLogger.LogSessionEvent(models.SessionActionLogout, sessionID, "")

	return nil
}

// TerminateAllForAccount removes every session owned by the account. Used
// after a password change so old logins can't linger.
func (s *SessionService) TerminateAllForAccount(ctx context.Context, accountID string) error {
	keys, err := s.store.KeysByPrefix(ctx, registry.SessionKeyPrefix)
	if err != nil {
		return models.ErrDependencyUnavailable
	}

	for _, key := range keys {
		owner, err := s.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, registry.ErrKeyNotFound) {
				continue // expired between scan and read
			}
			return models.ErrDependencyUnavailable
		}
		if owner != accountID {
			continue
		}
		sessionID := key[len(registry.SessionKeyPrefix):]
		if err := s.Terminate(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// Touch renews the session TTL when sliding expiration is enabled. With the
// default fixed-TTL policy it is a no-op.
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	if !s.policy.SlidingSessions {
		return nil
	}
	key := registry.SessionKeyPrefix + sessionID
	if _, err := s.store.Expire(ctx, key, s.policy.SessionTTL); err != nil {
		return models.ErrDependencyUnavailable
	}
	return nil
}

// CountActive enumerates non-expired session keys. Eventually consistent:
// a count racing a publish on another replica may be briefly stale.
func (s *SessionService) CountActive(ctx context.Context) (int, error) {
	keys, err := s.store.KeysByPrefix(ctx, registry.SessionKeyPrefix)
	if err != nil {
		s.logger.Error("failed to count active sessions", slog.Any("error", err))
		return 0, models.ErrDependencyUnavailable
	}
	return len(keys), nil
}

// publish sends the lifecycle envelope on the broadcast channel. Publish
// failures are logged, not fatal: subscribers resynchronize on the next
// event since every recount enumerates the full key set.
func (s *SessionService) publish(ctx context.Context, sessionID, action string) {
	payload, err := json.Marshal(models.SessionEvent{SessionID: sessionID, Action: action})
	if err != nil {
		s.logger.Error("failed to marshal session event", slog.Any("error", err))
		return
	}
	if err := s.store.Publish(ctx, s.channel, payload); err != nil {
		s.logger.Warn("failed to publish session event",
			slog.String("session_id", sessionID),
			slog.String("action", action),
			slog.Any("error", err))
	}
}
