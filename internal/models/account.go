package models

import (
	"time"
)

// Account statuses
const (
	StatusUnverified = "unverified"
	StatusActive     = "active"
	StatusSuspended  = "suspended"
	StatusDeleted    = "deleted"
)

// PasswordHistoryLimit is the number of prior password hashes retained for
// reuse rejection. Oldest entries are evicted on overflow.
const PasswordHistoryLimit = 5

type Account struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string
	PasswordHistory   []string // prior bcrypt hashes, newest last, max 5
	Status            string   // "unverified", "active", "suspended", "deleted"
	TwoFactorEnabled  bool
	FailedLoginCount  int
	LastFailedLoginAt *time.Time
	Locked            bool
	LockExpiresAt     *time.Time // set and cleared together with Locked
	TwoFactorCodeHash *string    // SHA-256 hex of the pending 6-digit code
	TwoFactorCodeExpiresAt *time.Time
	TwoFactorFailedCount   int
	PasswordChangedAt      *time.Time // invalidates tokens issued before it
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsLocked reports whether the account lock is still in force at the given time.
func (a *Account) IsLocked(now time.Time) bool {
	return a.Locked && a.LockExpiresAt != nil && now.Before(*a.LockExpiresAt)
}

// LockExpired reports whether a previously applied lock has run out.
func (a *Account) LockExpired(now time.Time) bool {
	return a.Locked && a.LockExpiresAt != nil && !now.Before(*a.LockExpiresAt)
}

// HasPendingCode reports whether a two-factor code is pending and unexpired.
func (a *Account) HasPendingCode(now time.Time) bool {
	return a.TwoFactorCodeHash != nil && a.TwoFactorCodeExpiresAt != nil && now.Before(*a.TwoFactorCodeExpiresAt)
}
