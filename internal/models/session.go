package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session represents one authenticated login tracked in the shared registry.
// Expiry is store-enforced: an expired session is indistinguishable from a
// deleted one, so no status flag is persisted.
type Session struct {
	ID        string    `json:"session_id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session event actions published on the registry broadcast channel.
const (
	SessionActionLogin  = "login"
	SessionActionLogout = "logout"
)

// SessionEvent is the JSON envelope published when a session is created or
// terminated.
type SessionEvent struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
}

// Token types carried in the "type" claim.
const (
	TokenTypeAccess    = "access"
	TokenTypeRefresh   = "refresh"
	TokenTypeChallenge = "challenge" // short-lived 2FA challenge binding
)

type TokenClaims struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the bearer credential set returned at session creation.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
