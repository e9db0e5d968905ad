package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ttrenholm/gatehouse/internal/database"
	"github.com/ttrenholm/gatehouse/internal/models"
)

// LoginAttemptRepository is the append-only audit store. Attempts are never
// updated or deleted by the auth core; expired rows are reaped by the
// retention cleanup task.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record inserts one attempt row.
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}

	query := `
		INSERT INTO login_attempts (id, account_id, username, ip_address, user_agent,
			device, browser, os, location, outcome, reason, attempted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.AccountID,
		attempt.Username,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Device,
		attempt.Browser,
		attempt.OS,
		attempt.Location,
		attempt.Outcome,
		attempt.Reason,
		attempt.AttemptedAt,
		attempt.ExpiresAt,
	)
	return database.MapPostgresError(err)
}

// ListByUsername returns recent attempts for one subject, newest first.
func (r *LoginAttemptRepository) ListByUsername(ctx context.Context, username string, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, account_id, username, ip_address, user_agent,
			device, browser, os, location, outcome, reason, attempted_at, expires_at
		FROM login_attempts
		WHERE username = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, username, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(
			&a.ID, &a.AccountID, &a.Username, &a.IPAddress, &a.UserAgent,
			&a.Device, &a.Browser, &a.OS, &a.Location, &a.Outcome, &a.Reason,
			&a.AttemptedAt, &a.ExpiresAt,
		); err != nil {
			return nil, database.MapPostgresError(err)
		}
		attempts = append(attempts, &a)
	}

	return attempts, rows.Err()
}

// CleanupExpired removes attempt rows past their retention window.
func (r *LoginAttemptRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at < NOW()`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
