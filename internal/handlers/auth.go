package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/models"
	"github.com/ttrenholm/gatehouse/internal/services"
	pkghttp "github.com/ttrenholm/gatehouse/pkg/http"
)

// LoginServiceInterface defines the credential-verification entry point
type LoginServiceInterface interface {
	Authenticate(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error)
}

// TwoFactorServiceInterface defines the challenge verification operations
type TwoFactorServiceInterface interface {
	Verify(ctx context.Context, challengeToken, code string, reqCtx services.RequestContext) (*services.LoginResult, error)
	Resend(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error)
}

// SessionServiceInterface defines the token and session lifecycle operations
type SessionServiceInterface interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Terminate(ctx context.Context, sessionID string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	login    LoginServiceInterface
	twoFa    TwoFactorServiceInterface
	sessions SessionServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(login LoginServiceInterface, twoFa TwoFactorServiceInterface, sessions SessionServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		login:    login,
		twoFa:    twoFa,
		sessions: sessions,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required"`
}

// VerifyRequest represents the request body for two-factor verification
type VerifyRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,len=6,numeric"`
}

// RefreshTokenRequest represents the request body for token refresh
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *AuthHandler) requestContext(r *http.Request) services.RequestContext {
	return services.RequestContext{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// writeLoginResult maps a login result onto an HTTP status and renders the
// result envelope as the body.
func writeLoginResult(w http.ResponseWriter, result *services.LoginResult) {
	status := http.StatusOK
	switch result.Status {
	case services.LoginStatusFailed:
		status = http.StatusUnauthorized
	case services.LoginStatusLocked:
		status = http.StatusTooManyRequests
	case services.LoginStatusUnverified:
		status = http.StatusForbidden
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

// writeServiceError maps service-level errors onto HTTP errors.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrDependencyUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable. Please try again.")
	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenStale):
		pkghttp.WriteUnauthorized(w, "Invalid or expired token")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Not found")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Login handles credential verification
// @Summary Authenticate with username and password
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} services.LoginResult
// @Failure 429 {object} services.LoginResult
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	result, err := h.login.Authenticate(r.Context(), req.Username, req.Password, h.requestContext(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeLoginResult(w, result)
}

// Verify handles two-factor code submission
// @Summary Verify a two-factor code
// @Accept json
// @Param request body VerifyRequest true "Verify request"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Failure 401 {object} services.LoginResult
// @Router /auth/verify [post]
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.twoFa.Verify(r.Context(), req.ChallengeToken, req.Code, h.requestContext(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeLoginResult(w, result)
}

// Resend re-authenticates and sends a fresh two-factor code
// @Summary Resend the two-factor code
// @Accept json
// @Param request body LoginRequest true "Resend request"
// @Produce json
// @Success 200 {object} services.LoginResult
// @Router /auth/resend [post]
func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	result, err := h.twoFa.Resend(r.Context(), req.Username, req.Password, h.requestContext(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeLoginResult(w, result)
}

// Refresh exchanges a refresh token for a new access token
// @Summary Refresh the access token
// @Accept json
// @Param request body RefreshTokenRequest true "Refresh request"
// @Produce json
// @Success 200 {object} models.TokenPair
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(pair)
}

// Logout terminates the caller's session
// @Summary Log out
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil || claims.SessionID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.sessions.Terminate(r.Context(), claims.SessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
