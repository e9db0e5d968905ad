package models

import "time"

// Login attempt outcomes
const (
	AttemptOutcomeSuccess    = "success"
	AttemptOutcomeFailed     = "failed"
	AttemptOutcomeLocked     = "locked"
	AttemptOutcomeUnverified = "unverified"
)

// LoginAttempt is an immutable audit fact recorded once per authentication or
// two-factor verification call. Never mutated or deleted by the auth core;
// expired rows are purged by the retention cleanup task.
type LoginAttempt struct {
	ID          string    `db:"id"`
	AccountID   *string   `db:"account_id"` // nil when the username is unknown
	Username    string    `db:"username"`
	IPAddress   string    `db:"ip_address"`
	UserAgent   string    `db:"user_agent"`
	Device      string    `db:"device"`
	Browser     string    `db:"browser"`
	OS          string    `db:"os"`
	Location    *string   `db:"location"` // coarse geolocation, nil unless a resolver is wired
	Outcome     string    `db:"outcome"`  // "success", "failed", "locked", "unverified"
	Reason      string    `db:"reason"`
	AttemptedAt time.Time `db:"attempted_at"`
	ExpiresAt   time.Time `db:"expires_at"`
}
