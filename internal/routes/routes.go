package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/handlers"
	"github.com/ttrenholm/gatehouse/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	accountHandler *handlers.AccountHandler,
	sessionsHandler *handlers.SessionsHandler,
	tokenManager *auth.TokenManager,
) {
	authRateLimit := middleware.DefaultAuthRateLimit()

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(authRateLimit))
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/verify", authHandler.Verify)
		r.Post("/auth/resend", authHandler.Resend)
		r.Post("/auth/refresh", authHandler.Refresh)
	})

	// Live session count is public read-only
	router.Get("/sessions/count", sessionsHandler.Count)
	router.Get("/sessions/stream", sessionsHandler.Stream)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))
		r.Use(middleware.RateLimitByAccount(middleware.DefaultAuthenticatedRateLimit()))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/account/password", accountHandler.ChangePassword)
	})
}
