package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/models"
	pkgauth "github.com/ttrenholm/gatehouse/pkg/auth"
	pkghttp "github.com/ttrenholm/gatehouse/pkg/http"
)

// AccountServiceInterface defines credential-maintenance operations
type AccountServiceInterface interface {
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
}

// AccountHandler handles account self-service HTTP requests
type AccountHandler struct {
	accounts AccountServiceInterface
}

func NewAccountHandler(accounts AccountServiceInterface) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// ChangePassword rotates the caller's password
// @Summary Change password
// @Security BearerAuth
// @Accept json
// @Param request body ChangePasswordRequest true "Change password request"
// @Success 204
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /account/password [post]
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), claims.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "New password was used recently")
		case isPasswordValidationError(err):
			pkghttp.WriteBadRequest(w, "New password does not meet requirements")
		default:
			writeServiceError(w, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func isPasswordValidationError(err error) bool {
	var ve *pkgauth.PasswordValidationError
	return errors.As(err, &ve)
}
