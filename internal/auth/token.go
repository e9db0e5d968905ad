package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ttrenholm/gatehouse/internal/models"
)

// TokenManager handles JWT generation and validation for the three token
// kinds: access (per-request authorization), refresh (mints new access
// tokens), and challenge (binds a pending two-factor verification to an
// account for five minutes).
type TokenManager struct {
	secret          string
	accessExpiry    time.Duration
	refreshExpiry   time.Duration
	challengeExpiry time.Duration

	now func() time.Time
}

func NewTokenManager(secret string, accessExpiry, refreshExpiry, challengeExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:          secret,
		accessExpiry:    accessExpiry,
		refreshExpiry:   refreshExpiry,
		challengeExpiry: challengeExpiry,
		now:             time.Now,
	}
}

// SetClock overrides the time source. Test hook only.
func (tm *TokenManager) SetClock(now func() time.Time) {
	tm.now = now
}

// GenerateAccessToken creates a short-lived access token carrying the
// account id, session id, and issued-at time.
func (tm *TokenManager) GenerateAccessToken(accountID, sessionID string) (string, error) {
	return tm.generate(models.TokenTypeAccess, accountID, sessionID, tm.accessExpiry)
}

// GenerateRefreshToken creates the longer-lived refresh token. Its issued-at
// claim is what the password-change invariant is checked against.
func (tm *TokenManager) GenerateRefreshToken(accountID, sessionID string) (string, error) {
	return tm.generate(models.TokenTypeRefresh, accountID, sessionID, tm.refreshExpiry)
}

// GenerateChallengeToken creates the 5-minute token returned with a
// "2fa_required" response. It grants nothing except the right to submit a
// code for this account.
func (tm *TokenManager) GenerateChallengeToken(accountID string) (string, error) {
	return tm.generate(models.TokenTypeChallenge, accountID, "", tm.challengeExpiry)
}

func (tm *TokenManager) generate(tokenType, accountID, sessionID string, expiry time.Duration) (string, error) {
	now := tm.now()
	claims := &models.TokenClaims{
		Type:      tokenType,
		AccountID: accountID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken verifies signature and expiry and returns the claims. The
// caller is responsible for checking the token type fits the operation.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return tm.now() }))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}

// ValidateTokenOfType verifies the token and enforces its "type" claim.
func (tm *TokenManager) ValidateTokenOfType(tokenString, tokenType string) (*models.TokenClaims, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenType {
		return nil, models.ErrTokenInvalid
	}
	return claims, nil
}
