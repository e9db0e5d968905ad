package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/background"
	"github.com/ttrenholm/gatehouse/internal/config"
	"github.com/ttrenholm/gatehouse/internal/database"
	"github.com/ttrenholm/gatehouse/internal/handlers"
	middlewareCustom "github.com/ttrenholm/gatehouse/internal/middleware"
	"github.com/ttrenholm/gatehouse/internal/notify"
	"github.com/ttrenholm/gatehouse/internal/registry"
	"github.com/ttrenholm/gatehouse/internal/repositories"
	"github.com/ttrenholm/gatehouse/internal/routes"
	"github.com/ttrenholm/gatehouse/internal/services"
	pkghttp "github.com/ttrenholm/gatehouse/pkg/http"
	pkglogger "github.com/ttrenholm/gatehouse/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize session registry backend
	redisClient, err := database.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	sessionStore := registry.NewRedisStore(redisClient)

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(loginAttemptRepo, logger, cfg.Auth.CleanupInterval)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.ChallengeTTL,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Timing delay for auth endpoints
	timingDelay := auth.NewTimingDelay(auth.DefaultTimingConfig())

	// Initialize services
	auditService := services.NewAuditService(loginAttemptRepo, nil, auditLogger, logger, cfg.Auth.AttemptRetention)

	sessionService := services.NewSessionService(
		sessionStore,
		accountRepo,
		tokenManager,
		auditLogger,
		logger,
		cfg.Redis.Channel,
		services.SessionPolicy{
			SessionTTL:         cfg.Auth.SessionTTL,
			RotateRefreshToken: cfg.Auth.RotateRefreshToken,
			SlidingSessions:    cfg.Auth.SlidingSessions,
		},
	)

	twoFactorService := services.NewTwoFactorService(
		accountRepo,
		tokenManager,
		emailService,
		sessionService,
		auditService,
		services.TwoFactorPolicy{
			CodeTTL:          cfg.Auth.CodeTTL,
			MaxCodeFailures:  cfg.Lockout.MaxCodeFailures,
			CodeLockDuration: cfg.Lockout.CodeLockDuration,
		},
		logger,
	)

	loginService := services.NewLoginService(
		accountRepo,
		twoFactorService,
		sessionService,
		auditService,
		timingDelay,
		services.LockoutPolicy{
			MaxFailures:   cfg.Lockout.MaxFailures,
			FailureWindow: cfg.Lockout.FailureWindow,
			LockDuration:  cfg.Lockout.LockDuration,
		},
		logger,
	)
	twoFactorService.SetAuthenticator(loginService)

	accountService := services.NewAccountService(accountRepo, sessionService, logger)

	// Live session count fan-out
	hub := notify.NewHub()
	listener := registry.NewListener(sessionStore, hub, cfg.Redis.Channel, logger)

	// Initialize handlers
	var ipConfig *pkghttp.IPConfig
	if len(cfg.Server.TrustedProxies) > 0 {
		ipConfig = &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	}
	authHandler := handlers.NewAuthHandler(loginService, twoFactorService, sessionService, ipConfig)
	accountHandler := handlers.NewAccountHandler(accountService)
	sessionsHandler := handlers.NewSessionsHandler(sessionService, hub)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, accountHandler, sessionsHandler, tokenManager)

	// Health check covering both backing stores
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")

		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","registry":"down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start background tasks
	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	go cleanupManager.Start(backgroundCtx)
	go listener.Run(backgroundCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	backgroundCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
