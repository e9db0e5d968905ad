package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ttrenholm/gatehouse/internal/models"
	"github.com/ttrenholm/gatehouse/pkg/auth"
)

// SessionTerminator is the slice of SessionService the account service
// needs: after a password change every existing session is torn down.
type SessionTerminator interface {
	TerminateAllForAccount(ctx context.Context, accountID string) error
}

// AccountService covers account provisioning and credential maintenance.
type AccountService struct {
	accounts AccountStore
	sessions SessionTerminator
	logger   *slog.Logger

	now func() time.Time
}

func NewAccountService(accounts AccountStore, sessions SessionTerminator, logger *slog.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook only.
func (s *AccountService) SetClock(now func() time.Time) { s.now = now }

// CreateAccount provisions a new account in the unverified state.
func (s *AccountService) CreateAccount(ctx context.Context, username, email, password string) (*models.Account, error) {
	if _, err := s.accounts.GetByUsername(ctx, username); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := auth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account := &models.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Status:       models.StatusUnverified,
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account created", slog.String("account_id", created.ID))
	return created, nil
}

// ChangePassword verifies the current password, enforces the strength policy
// and the reuse window, stores the new hash, and tears down the account's
// sessions. Setting passwordChangedAt also invalidates every refresh token
// issued before this call.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get account", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := auth.ComparePassword(account.PasswordHash, currentPassword); err != nil {
		return models.ErrInvalidCredentials
	}

	if err := auth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("invalid password: %w", err)
	}

	// The current hash counts against the reuse window too.
	history := append([]string{}, account.PasswordHistory...)
	history = append(history, account.PasswordHash)
	if auth.IsInHistory(newPassword, history) {
		return fmt.Errorf("%w: password was used recently", models.ErrBadRequest)
	}

	newHash, err := auth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	updatedHistory := auth.AppendHistory(account.PasswordHistory, account.PasswordHash, models.PasswordHistoryLimit)
	changedAt := s.now()

	if err := s.accounts.UpdatePassword(ctx, accountID, newHash, updatedHistory, changedAt); err != nil {
		s.logger.Error("failed to update password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sessions.TerminateAllForAccount(ctx, accountID); err != nil {
		// Password is already changed; stale sessions die when their
		// registry TTL runs out and their refresh tokens are now stale.
		s.logger.Warn("failed to terminate sessions after password change",
			slog.String("account_id", accountID), slog.Any("error", err))
	}

	s.logger.Info("password changed", slog.String("account_id", accountID))
	return nil
}

// UpdateStatus moves an account through its lifecycle. Leaving the active
// state tears the account's sessions down; the auth core itself only ever
// reads status.
func (s *AccountService) UpdateStatus(ctx context.Context, accountID, status string) error {
	switch status {
	case models.StatusUnverified, models.StatusActive, models.StatusSuspended, models.StatusDeleted:
	default:
		return fmt.Errorf("%w: unknown account status %q", models.ErrBadRequest, status)
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get account", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if account.Status == status {
		return nil
	}

	if err := s.accounts.UpdateStatus(ctx, accountID, status); err != nil {
		s.logger.Error("failed to update account status", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if status == models.StatusSuspended || status == models.StatusDeleted {
		if err := s.sessions.TerminateAllForAccount(ctx, accountID); err != nil {
			s.logger.Warn("failed to terminate sessions on status change",
				slog.String("account_id", accountID), slog.Any("error", err))
		}
	}

	s.logger.Info("account status changed",
		slog.String("account_id", accountID),
		slog.String("from", account.Status),
		slog.String("to", status))
	return nil
}
