package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ttrenholm/gatehouse/internal/auth"
	"github.com/ttrenholm/gatehouse/internal/models"
	"github.com/ttrenholm/gatehouse/internal/services"
)

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	AuthenticateFunc func(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error)
}

func (m *MockLoginService) Authenticate(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, username, password, reqCtx)
	}
	return &services.LoginResult{Status: services.LoginStatusFailed}, nil
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	VerifyFunc func(ctx context.Context, challengeToken, code string, reqCtx services.RequestContext) (*services.LoginResult, error)
	ResendFunc func(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error)
}

func (m *MockTwoFactorService) Verify(ctx context.Context, challengeToken, code string, reqCtx services.RequestContext) (*services.LoginResult, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, challengeToken, code, reqCtx)
	}
	return &services.LoginResult{Status: services.LoginStatusFailed}, nil
}

func (m *MockTwoFactorService) Resend(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error) {
	if m.ResendFunc != nil {
		return m.ResendFunc(ctx, username, password, reqCtx)
	}
	return &services.LoginResult{Status: services.LoginStatusFailed}, nil
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	RefreshFunc     func(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	TerminateFunc   func(ctx context.Context, sessionID string) error
	CountActiveFunc func(ctx context.Context) (int, error)
}

func (m *MockSessionService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, models.ErrTokenInvalid
}

func (m *MockSessionService) Terminate(ctx context.Context, sessionID string) error {
	if m.TerminateFunc != nil {
		return m.TerminateFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockSessionService) CountActive(ctx context.Context) (int, error) {
	if m.CountActiveFunc != nil {
		return m.CountActiveFunc(ctx)
	}
	return 0, nil
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	ChangePasswordFunc func(ctx context.Context, accountID, currentPassword, newPassword string) error
}

func (m *MockAccountService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, accountID, currentPassword, newPassword)
	}
	return nil
}

// newJSONRequest builds a request with a JSON-encoded body
func newJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// authenticate stamps access-token claims onto the request
func authenticate(req *http.Request, accountID, sessionID string) *http.Request {
	claims := &models.TokenClaims{
		Type:      models.TokenTypeAccess,
		AccountID: accountID,
		SessionID: sessionID,
	}
	return req.WithContext(auth.ContextWithClaims(req.Context(), claims))
}

// decodeLoginResult parses the response body as a login result envelope
func decodeLoginResult(t *testing.T, rec *httptest.ResponseRecorder) *services.LoginResult {
	t.Helper()
	var result services.LoginResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode login result: %v", err)
	}
	return &result
}
