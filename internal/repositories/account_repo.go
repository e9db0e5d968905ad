package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ttrenholm/gatehouse/internal/database"
	"github.com/ttrenholm/gatehouse/internal/models"
)

// AccountRepository handles durable account state: point lookups by
// id/username/email and atomic field updates. No multi-row transactions are
// required by the auth core.
type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `
	id, username, email, password_hash, password_history, status,
	two_factor_enabled, failed_login_count, last_failed_login_at,
	locked, lock_expires_at,
	two_factor_code_hash, two_factor_code_expires_at, two_factor_failed_count,
	password_changed_at, created_at, updated_at
`

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account

	err := scanner.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.PasswordHistory, &a.Status,
		&a.TwoFactorEnabled, &a.FailedLoginCount, &a.LastFailedLoginAt,
		&a.Locked, &a.LockExpiresAt,
		&a.TwoFactorCodeHash, &a.TwoFactorCodeExpiresAt, &a.TwoFactorFailedCount,
		&a.PasswordChangedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, username))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Status == "" {
		account.Status = models.StatusActive
	}
	if account.PasswordHistory == nil {
		account.PasswordHistory = []string{}
	}

	query := `
		INSERT INTO accounts (id, username, email, password_hash, password_history, status,
			two_factor_enabled, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + accountColumns

	return scanAccountRow(r.db.Pool.QueryRow(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.PasswordHistory, account.Status, account.TwoFactorEnabled,
		account.PasswordChangedAt, account.CreatedAt, account.UpdatedAt,
	))
}

// RecordLoginFailure atomically writes the consecutive-failure counter and,
// when the threshold was crossed, the lock state. Two racing logins may lose
// a counter update; that is tolerated, the lock flag read at decision time is
// what's authoritative.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id string, failedCount int, failedAt time.Time, locked bool, lockExpiresAt *time.Time) error {
	query := `
		UPDATE accounts
		SET failed_login_count = $1, last_failed_login_at = $2,
			locked = $3, lock_expires_at = $4, updated_at = NOW()
		WHERE id = $5
	`
	result, err := r.db.Pool.Exec(ctx, query, failedCount, failedAt, locked, lockExpiresAt, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearLoginFailures resets the failure counter and lock state together.
func (r *AccountRepository) ClearLoginFailures(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET failed_login_count = 0, last_failed_login_at = NULL,
			locked = FALSE, lock_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearExpiredLock resets the lock together with both failure counters.
// Called once a lock's expiry has passed: the account returns to a clean
// slate and the next failure of either kind starts a fresh streak.
func (r *AccountRepository) ClearExpiredLock(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET failed_login_count = 0, last_failed_login_at = NULL,
			locked = FALSE, lock_expires_at = NULL,
			two_factor_failed_count = 0, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetTwoFactorCode stores the hash and expiry of a freshly issued code,
// superseding any pending one.
func (r *AccountRepository) SetTwoFactorCode(ctx context.Context, id, codeHash string, expiresAt time.Time) error {
	query := `
		UPDATE accounts
		SET two_factor_code_hash = $1, two_factor_code_expires_at = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := r.db.Pool.Exec(ctx, query, codeHash, expiresAt, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearTwoFactorCode removes the pending code. When resetFailures is set the
// 2FA failure counter is cleared too (successful verification); a lockout
// clears the code but keeps its counter history irrelevant by locking.
func (r *AccountRepository) ClearTwoFactorCode(ctx context.Context, id string, resetFailures bool) error {
	query := `
		UPDATE accounts
		SET two_factor_code_hash = NULL, two_factor_code_expires_at = NULL,
			two_factor_failed_count = CASE WHEN $1 THEN 0 ELSE two_factor_failed_count END,
			updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.Pool.Exec(ctx, query, resetFailures, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordTwoFactorFailure writes the 2FA failure counter and optional lock.
func (r *AccountRepository) RecordTwoFactorFailure(ctx context.Context, id string, failedCount int, locked bool, lockExpiresAt *time.Time) error {
	query := `
		UPDATE accounts
		SET two_factor_failed_count = $1, locked = $2, lock_expires_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	result, err := r.db.Pool.Exec(ctx, query, failedCount, locked, lockExpiresAt, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdatePassword swaps the credential, appends the old hash to the rolling
// history, and stamps password_changed_at, which invalidates every token
// issued before it.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, history []string, changedAt time.Time) error {
	query := `
		UPDATE accounts
		SET password_hash = $1, password_history = $2, password_changed_at = $3, updated_at = NOW()
		WHERE id = $4
	`
	result, err := r.db.Pool.Exec(ctx, query, passwordHash, history, changedAt, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateStatus moves the account through its lifecycle
// (unverified/active/suspended/deleted). The auth core never hard-deletes.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE accounts SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Pool.Exec(ctx, query, status, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
