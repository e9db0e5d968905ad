package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttrenholm/gatehouse/internal/models"
	"github.com/ttrenholm/gatehouse/internal/services"
)

func newAuthHandler(login LoginServiceInterface, twoFa TwoFactorServiceInterface, sessions SessionServiceInterface) *AuthHandler {
	return NewAuthHandler(login, twoFa, sessions, nil)
}

func TestAuthHandler_Login_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		result     *services.LoginResult
		wantStatus int
	}{
		{
			name:       "success",
			result:     &services.LoginResult{Status: services.LoginStatusSuccess, Tokens: &models.TokenPair{AccessToken: "a", RefreshToken: "r"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "two factor required",
			result:     &services.LoginResult{Status: services.LoginStatusTwoFactor, ChallengeToken: "challenge"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "failed",
			result:     &services.LoginResult{Status: services.LoginStatusFailed, Message: "Invalid credentials"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "locked",
			result:     &services.LoginResult{Status: services.LoginStatusLocked},
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "unverified",
			result:     &services.LoginResult{Status: services.LoginStatusUnverified},
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			login := &MockLoginService{
				AuthenticateFunc: func(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error) {
					return tt.result, nil
				},
			}
			handler := newAuthHandler(login, &MockTwoFactorService{}, &MockSessionService{})

			req := newJSONRequest(t, "POST", "/auth/login", LoginRequest{Username: "alice", Password: "pw"})
			rec := httptest.NewRecorder()
			handler.Login(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			got := decodeLoginResult(t, rec)
			assert.Equal(t, tt.result.Status, got.Status)
		})
	}
}

func TestAuthHandler_Login_InvalidBody(t *testing.T) {
	handler := newAuthHandler(&MockLoginService{}, &MockTwoFactorService{}, &MockSessionService{})

	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandler_Login_MissingFields(t *testing.T) {
	called := false
	login := &MockLoginService{
		AuthenticateFunc: func(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error) {
			called = true
			return nil, nil
		},
	}
	handler := newAuthHandler(login, &MockTwoFactorService{}, &MockSessionService{})

	req := newJSONRequest(t, "POST", "/auth/login", LoginRequest{Username: "alice"})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called, "service must not be reached when validation fails")
}

func TestAuthHandler_Login_PassesRequestContext(t *testing.T) {
	var gotReqCtx services.RequestContext
	login := &MockLoginService{
		AuthenticateFunc: func(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error) {
			gotReqCtx = reqCtx
			return &services.LoginResult{Status: services.LoginStatusFailed}, nil
		},
	}
	handler := newAuthHandler(login, &MockTwoFactorService{}, &MockSessionService{})

	req := newJSONRequest(t, "POST", "/auth/login", LoginRequest{Username: "alice", Password: "pw"})
	req.RemoteAddr = "203.0.113.7:4000"
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, "203.0.113.7", gotReqCtx.IPAddress)
	assert.Equal(t, "test-agent", gotReqCtx.UserAgent)
}

func TestAuthHandler_Login_DependencyUnavailable(t *testing.T) {
	login := &MockLoginService{
		AuthenticateFunc: func(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error) {
			return nil, models.ErrDependencyUnavailable
		},
	}
	handler := newAuthHandler(login, &MockTwoFactorService{}, &MockSessionService{})

	req := newJSONRequest(t, "POST", "/auth/login", LoginRequest{Username: "alice", Password: "pw"})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthHandler_Verify(t *testing.T) {
	twoFa := &MockTwoFactorService{
		VerifyFunc: func(ctx context.Context, challengeToken, code string, reqCtx services.RequestContext) (*services.LoginResult, error) {
			require.Equal(t, "challenge-token", challengeToken)
			require.Equal(t, "123456", code)
			return &services.LoginResult{Status: services.LoginStatusSuccess, Tokens: &models.TokenPair{AccessToken: "a"}}, nil
		},
	}
	handler := newAuthHandler(&MockLoginService{}, twoFa, &MockSessionService{})

	req := newJSONRequest(t, "POST", "/auth/verify", VerifyRequest{ChallengeToken: "challenge-token", Code: "123456"})
	rec := httptest.NewRecorder()
	handler.Verify(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.LoginStatusSuccess, decodeLoginResult(t, rec).Status)
}

func TestAuthHandler_Verify_RejectsMalformedCode(t *testing.T) {
	handler := newAuthHandler(&MockLoginService{}, &MockTwoFactorService{}, &MockSessionService{})

	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		req := newJSONRequest(t, "POST", "/auth/verify", VerifyRequest{ChallengeToken: "token", Code: code})
		rec := httptest.NewRecorder()
		handler.Verify(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "code %q", code)
	}
}

func TestAuthHandler_Resend(t *testing.T) {
	twoFa := &MockTwoFactorService{
		ResendFunc: func(ctx context.Context, username, password string, reqCtx services.RequestContext) (*services.LoginResult, error) {
			return &services.LoginResult{Status: services.LoginStatusTwoFactor, ChallengeToken: "fresh"}, nil
		},
	}
	handler := newAuthHandler(&MockLoginService{}, twoFa, &MockSessionService{})

	req := newJSONRequest(t, "POST", "/auth/resend", LoginRequest{Username: "alice", Password: "pw"})
	rec := httptest.NewRecorder()
	handler.Resend(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fresh", decodeLoginResult(t, rec).ChallengeToken)
}

func TestAuthHandler_Refresh(t *testing.T) {
	sessions := &MockSessionService{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
			require.Equal(t, "refresh-token", refreshToken)
			return &models.TokenPair{AccessToken: "new-access"}, nil
		},
	}
	handler := newAuthHandler(&MockLoginService{}, &MockTwoFactorService{}, sessions)

	req := newJSONRequest(t, "POST", "/auth/refresh", RefreshTokenRequest{RefreshToken: "refresh-token"})
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "new-access")
}

func TestAuthHandler_Refresh_InvalidOrStaleToken(t *testing.T) {
	for _, svcErr := range []error{models.ErrTokenInvalid, models.ErrTokenStale} {
		sessions := &MockSessionService{
			RefreshFunc: func(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
				return nil, svcErr
			},
		}
		handler := newAuthHandler(&MockLoginService{}, &MockTwoFactorService{}, sessions)

		req := newJSONRequest(t, "POST", "/auth/refresh", RefreshTokenRequest{RefreshToken: "bad"})
		rec := httptest.NewRecorder()
		handler.Refresh(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "error %v", svcErr)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	var terminated string
	sessions := &MockSessionService{
		TerminateFunc: func(ctx context.Context, sessionID string) error {
			terminated = sessionID
			return nil
		},
	}
	handler := newAuthHandler(&MockLoginService{}, &MockTwoFactorService{}, sessions)

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	req = authenticate(req, "acct-1", "sess-1")
	rec := httptest.NewRecorder()
	handler.Logout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "sess-1", terminated)
}

func TestAuthHandler_Logout_Unauthenticated(t *testing.T) {
	handler := newAuthHandler(&MockLoginService{}, &MockTwoFactorService{}, &MockSessionService{})

	req := httptest.NewRequest("POST", "/auth/logout", nil)
	rec := httptest.NewRecorder()
	handler.Logout(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
