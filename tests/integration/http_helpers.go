package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/config"
	"github.com/ttrenholm/gatehouse/internal/database"
	"github.com/ttrenholm/gatehouse/internal/handlers"
	"github.com/ttrenholm/gatehouse/internal/notify"
	"github.com/ttrenholm/gatehouse/internal/registry"
	"github.com/ttrenholm/gatehouse/internal/repositories"
	"github.com/ttrenholm/gatehouse/internal/routes"
	"github.com/ttrenholm/gatehouse/internal/services"
	pkglogger "github.com/ttrenholm/gatehouse/pkg/logger"
)

// SentCode is a captured two-factor email
type SentCode struct {
	To   string
	Code string
}

// CaptureEmailService records dispatched codes for test assertions
type CaptureEmailService struct {
	Sent []SentCode
	mu   sync.Mutex
}

func (c *CaptureEmailService) SendTwoFactorCode(ctx context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, SentCode{To: email, Code: code})
	return nil
}

// LastCode returns the most recent code sent, or empty
func (c *CaptureEmailService) LastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Sent) == 0 {
		return ""
	}
	return c.Sent[len(c.Sent)-1].Code
}

// TestServer wraps httptest.Server with the full stack: real database,
// miniredis-backed session registry, captured email dispatch
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *CaptureEmailService
	Store        *registry.RedisStore
	Hub          *notify.Hub
	TokenManager *auth.TokenManager
	Config       *config.Config

	redisServer *miniredis.Miniredis
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewTestServer initializes a complete HTTP server against the given database
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret-32-characters-long-aa",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 8 * time.Hour,
			SessionTTL:         8 * time.Hour,
			ChallengeTTL:       5 * time.Minute,
			CodeTTL:            20 * time.Minute,
			AttemptRetention:   720 * time.Hour,
		},
		Lockout: config.LockoutConfig{
			MaxFailures:      5,
			FailureWindow:    60 * time.Second,
			LockDuration:     15 * time.Minute,
			MaxCodeFailures:  10,
			CodeLockDuration: 30 * time.Minute,
		},
		Redis: config.RedisConfig{
			Channel: "gatehouse:sessions",
		},
		Server: config.ServerConfig{
			Port: "0",
			Env:  "test",
		},
	}

	redisServer, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	sessionStore := registry.NewRedisStore(redisClient)

	accountRepo := repositories.NewAccountRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.ChallengeTTL,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)
	captureEmail := &CaptureEmailService{}

	auditService := services.NewAuditService(loginAttemptRepo, nil, auditLogger, logger, cfg.Auth.AttemptRetention)

	sessionService := services.NewSessionService(
		sessionStore,
		accountRepo,
		tokenManager,
		auditLogger,
		logger,
		cfg.Redis.Channel,
		services.SessionPolicy{SessionTTL: cfg.Auth.SessionTTL},
	)

	twoFactorService := services.NewTwoFactorService(
		accountRepo,
		tokenManager,
		captureEmail,
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
		auth.NewTimingDelay(auth.TimingConfig{}),
		services.LockoutPolicy{
			MaxFailures:   cfg.Lockout.MaxFailures,
			FailureWindow: cfg.Lockout.FailureWindow,
			LockDuration:  cfg.Lockout.LockDuration,
		},
		logger,
	)
	twoFactorService.SetAuthenticator(loginService)

	accountService := services.NewAccountService(accountRepo, sessionService, logger)

	hub := notify.NewHub()

	authHandler := handlers.NewAuthHandler(loginService, twoFactorService, sessionService, nil)
	accountHandler := handlers.NewAccountHandler(accountService)
	sessionsHandler := handlers.NewSessionsHandler(sessionService, hub)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, accountHandler, sessionsHandler, tokenManager)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: captureEmail,
		Store:        sessionStore,
		Hub:          hub,
		TokenManager: tokenManager,
		Config:       cfg,
		redisServer:  redisServer,
		redisClient:  redisClient,
		logger:       logger,
	}, nil
}

// Close shuts down the test server and its registry backend
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.redisClient != nil {
		ts.redisClient.Close()
	}
	if ts.redisServer != nil {
		ts.redisServer.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// LoginResponse mirrors the login result envelope returned by the auth endpoints
type LoginResponse struct {
	Status         string `json:"status"`
	ChallengeToken string `json:"challenge_token"`
	Message        string `json:"message"`
	Session        *struct {
		ID        string `json:"session_id"`
		AccountID string `json:"account_id"`
	} `json:"session"`
	Tokens *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"tokens"`
}

// GetErrorMessage extracts the error message from an error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
