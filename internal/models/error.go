package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrInvalidCredentials is deliberately generic: callers never learn
	// which field was wrong. Lockout and two-factor outcomes travel in
	// LoginResult statuses rather than errors.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token failures
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenStale   = errors.New("token issued before password change")

	// DependencyUnavailable: registry, store, or notifier unreachable. Never
	// converted into an authentication failure.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
