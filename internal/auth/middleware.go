package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ttrenholm/gatehouse/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

// claimsContextKey stores the validated access-token claims for the request.
const claimsContextKey contextKey = "claims"

// Middleware validates a Bearer access token and injects its claims into the
// request context. Refresh and challenge tokens are rejected here: each is
// only accepted by its dedicated endpoint.
func Middleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateTokenOfType(parts[1], models.TokenTypeAccess)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the access-token claims injected by Middleware,
// or nil when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) *models.TokenClaims {
	claims, _ := ctx.Value(claimsContextKey).(*models.TokenClaims)
	return claims
}

// ContextWithClaims injects claims directly, bypassing token validation.
// Used by tests that exercise authenticated handlers.
func ContextWithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
