package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ttrenholm/gatehouse/internal/auth"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns default rate limit config for auth endpoints (10 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
	}
}

// DefaultAuthenticatedRateLimit returns default rate limit config for authenticated endpoints
func DefaultAuthenticatedRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
	}
}

func limitExceededHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"Rate limit exceeded"}`))
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(limitExceededHandler),
	)
}

// RateLimitByAccount creates a middleware that rate limits authenticated
// requests per account, falling back to client IP when no claims are present.
func RateLimitByAccount(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
				return "account:" + claims.AccountID, nil
			}
			return httprate.KeyByRealIP(r)
		}),
		httprate.WithLimitHandler(limitExceededHandler),
	)
}
