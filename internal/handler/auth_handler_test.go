package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	authenticateFn func(ctx context.Context, rawToken string) (*auth.Result, error)
	calls          int
	lastToken      string
}

func (m *mockAuthService) Authenticate(ctx context.Context, rawToken string) (*auth.Result, error) {
	m.calls++
	m.lastToken = rawToken
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, rawToken)
	}
	return nil, errors.New("not implemented")
}

type stubOAuthProvider struct {
	exchangeFn func(ctx context.Context, code string) (string, error)
}

func (stubOAuthProvider) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (s stubOAuthProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	if s.exchangeFn != nil {
		return s.exchangeFn(ctx, code)
	}
	return "header.payload.signature", nil
}

func testRegistry(p auth.OAuthProvider) *auth.Registry {
	r := auth.NewRegistry()
	if p != nil {
		r.Register(model.ProviderGoogle, p)
	}
	return r
}

func authenticatedResult() *auth.Result {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &auth.Result{
		User: &model.User{
			ID:          "internal-uuid",
			ExternalID:  "google-user-123",
			Provider:    model.ProviderGoogle,
			Email:       "user@example.com",
			Name:        "Test User",
			CreatedAt:   now,
			UpdatedAt:   now,
			LastLoginAt: &now,
		},
		IsNewUser: true,
	}
}

func newAuthTestHandler(service AuthServiceInterface, provider auth.OAuthProvider) *AuthHandler {
	return NewAuthHandler(service, testRegistry(provider), AuthHandlerConfig{
		BaseURL:        "http://localhost:3000",
		TokenMaxLength: 4096,
	})
}

func postVerify(h *AuthHandler, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/verify", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.VerifyToken(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) middleware.ErrorResponse {
	t.Helper()
	var body middleware.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v\nraw: %s", err, rec.Body.String())
	}
	if body.Success {
		t.Error("error response should have success=false")
	}
	return body
}

// --- VerifyToken ---

func TestVerifyToken_Success(t *testing.T) {
	service := &mockAuthService{
		authenticateFn: func(_ context.Context, _ string) (*auth.Result, error) {
			return authenticatedResult(), nil
		},
	}
	h := newAuthTestHandler(service, nil)

	rec := postVerify(h, "application/json", `{"token":"header.payload.signature"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	var body verifyTokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !body.Success {
		t.Error("success = false, want true")
	}
	if !body.IsNewUser {
		t.Error("isNewUser = false, want true")
	}
	if body.User.ID != "internal-uuid" {
		t.Errorf("user.id = %q, want internal-uuid", body.User.ID)
	}
	if body.User.ExternalID != "google-user-123" {
		t.Errorf("user.externalId = %q, want google-user-123", body.User.ExternalID)
	}
	if service.lastToken != "header.payload.signature" {
		t.Errorf("service received token %q", service.lastToken)
	}
}

// 空トークンは400となり、認証処理は呼ばれないことを検証
func TestVerifyToken_EmptyToken_BadRequest(t *testing.T) {
	service := &mockAuthService{}
	h := newAuthTestHandler(service, nil)

	for _, body := range []string{`{"token":""}`, `{"token":"   "}`, `{}`} {
		rec := postVerify(h, "application/json", body)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
		resp := decodeErrorBody(t, rec)
		if resp.Error.Code != model.ErrCodeValidationError {
			t.Errorf("code = %q, want VALIDATION_ERROR", resp.Error.Code)
		}
		if resp.Error.Message != "Token cannot be empty" {
			t.Errorf("message = %q, want Token cannot be empty", resp.Error.Message)
		}
	}
	if service.calls != 0 {
		t.Errorf("Authenticate was called %d times, want 0", service.calls)
	}
}

func TestVerifyToken_WrongContentType_UnsupportedMediaType(t *testing.T) {
	h := newAuthTestHandler(&mockAuthService{}, nil)

	rec := postVerify(h, "text/plain", `{"token":"h.p.s"}`)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}

	rec = postVerify(h, "", `{"token":"h.p.s"}`)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("no content type: status = %d, want 415", rec.Code)
	}
}

func TestVerifyToken_ContentTypeWithCharset_Accepted(t *testing.T) {
	service := &mockAuthService{
		authenticateFn: func(_ context.Context, _ string) (*auth.Result, error) {
			return authenticatedResult(), nil
		},
	}
	h := newAuthTestHandler(service, nil)

	rec := postVerify(h, "application/json; charset=utf-8", `{"token":"h.p.s"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestVerifyToken_MalformedJSON_BadRequest(t *testing.T) {
	h := newAuthTestHandler(&mockAuthService{}, nil)

	rec := postVerify(h, "application/json", `{"token": `)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestVerifyToken_TokenTooLong_BadRequest(t *testing.T) {
	service := &mockAuthService{}
	h := newAuthTestHandler(service, nil)

	long := strings.Repeat("a", 5000)
	rec := postVerify(h, "application/json", `{"token":"`+long+`"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if service.calls != 0 {
		t.Errorf("Authenticate was called %d times, want 0", service.calls)
	}
}

func TestVerifyToken_AuthenticationFailure_Unauthorized(t *testing.T) {
	service := &mockAuthService{
		authenticateFn: func(_ context.Context, _ string) (*auth.Result, error) {
			return nil, model.NewAuthenticationRequiredError()
		},
	}
	h := newAuthTestHandler(service, nil)

	rec := postVerify(h, "application/json", `{"token":"h.p.s"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body.Error.Code != model.ErrCodeAuthenticationRequired {
		t.Errorf("code = %q, want AUTHENTICATION_REQUIRED", body.Error.Code)
	}
}

// インフラ障害は内部詳細を漏らさない500になることを検証
func TestVerifyToken_InfrastructureFailure_InternalError(t *testing.T) {
	service := &mockAuthService{
		authenticateFn: func(_ context.Context, _ string) (*auth.Result, error) {
			return nil, errors.New("pq: connection refused")
		},
	}
	h := newAuthTestHandler(service, nil)

	rec := postVerify(h, "application/json", `{"token":"h.p.s"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "pq:") {
		t.Error("response must not leak internal error text")
	}
}

// --- OAuth Webフロー ---

func oauthRouter(h *AuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth/{provider}", func(r chi.Router) {
		r.Get("/login", h.Login)
		r.Get("/callback", h.Callback)
	})
	return r
}

func TestLogin_RedirectsWithStateCookie(t *testing.T) {
	h := newAuthTestHandler(&mockAuthService{}, stubOAuthProvider{})
	router := oauthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateCookie {
			stateCookie = c
		}
	}
	if stateCookie == nil || stateCookie.Value == "" {
		t.Fatal("state cookie should be set")
	}
	if !stateCookie.HttpOnly {
		t.Error("state cookie should be HttpOnly")
	}

	location := rec.Header().Get("Location")
	if !strings.Contains(location, "state="+stateCookie.Value) {
		t.Errorf("redirect %q should carry the state value", location)
	}
}

func TestLogin_UnsupportedProvider_Rejected(t *testing.T) {
	h := newAuthTestHandler(&mockAuthService{}, stubOAuthProvider{})
	router := oauthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/auth/facebook/login", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if body := decodeErrorBody(t, rec); body.Error.Code != model.ErrCodeUnsupportedProvider {
		t.Errorf("code = %q, want UNSUPPORTED_PROVIDER", body.Error.Code)
	}
}

func TestCallback_Success_RedirectsWithToken(t *testing.T) {
	service := &mockAuthService{
		authenticateFn: func(_ context.Context, _ string) (*auth.Result, error) {
			return authenticatedResult(), nil
		},
	}
	h := newAuthTestHandler(service, stubOAuthProvider{})
	router := oauthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=state-abc", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307\nbody: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "http://localhost:3000/#token=") {
		t.Errorf("redirect = %q, want fragment-carried token on the frontend URL", location)
	}
	if service.calls != 1 {
		t.Errorf("Authenticate calls = %d, want 1", service.calls)
	}
}

// stateの不一致はCSRFとして拒否されることを検証
func TestCallback_StateMismatch_Rejected(t *testing.T) {
	service := &mockAuthService{}
	h := newAuthTestHandler(service, stubOAuthProvider{})
	router := oauthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if service.calls != 0 {
		t.Errorf("Authenticate calls = %d, want 0", service.calls)
	}
}

func TestCallback_MissingCode_Rejected(t *testing.T) {
	h := newAuthTestHandler(&mockAuthService{}, stubOAuthProvider{})
	router := oauthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=state-abc", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCallback_ExchangeFailure_Unauthorized(t *testing.T) {
	provider := stubOAuthProvider{
		exchangeFn: func(_ context.Context, _ string) (string, error) {
			return "", errors.New("invalid_grant")
		},
	}
	h := newAuthTestHandler(&mockAuthService{}, provider)
	router := oauthRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=bad&state=state-abc", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
