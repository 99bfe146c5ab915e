package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/token"
)

// --- モック定義 ---

type mockVerifier struct {
	verifyFn func(ctx context.Context, rawToken string) (*token.Claims, error)
	calls    int
}

func (m *mockVerifier) Verify(ctx context.Context, rawToken string) (*token.Claims, error) {
	m.calls++
	if m.verifyFn != nil {
		return m.verifyFn(ctx, rawToken)
	}
	return nil, token.ErrNoVerifier
}

type mockDirectory struct {
	resolveOrCreateFn func(ctx context.Context, claims *token.Claims) (*model.User, error)
	touchLoginFn      func(ctx context.Context, userID string) (time.Time, error)
}

func (m *mockDirectory) ResolveOrCreate(ctx context.Context, claims *token.Claims) (*model.User, error) {
	if m.resolveOrCreateFn != nil {
		return m.resolveOrCreateFn(ctx, claims)
	}
	return nil, errors.New("not implemented")
}

func (m *mockDirectory) TouchLogin(ctx context.Context, userID string) (time.Time, error) {
	if m.touchLoginFn != nil {
		return m.touchLoginFn(ctx, userID)
	}
	return time.Now(), nil
}

func verifiedClaims() *token.Claims {
	return &token.Claims{
		Subject:     "google-user-123",
		Email:       "user@example.com",
		ExpiresAt:   time.Now().Add(time.Hour),
		AppMetadata: token.AppMetadata{Provider: "google"},
	}
}

// --- Authenticate ---

// 初回ログインはisNewUser=trueとなり、last_login_atが記録されることを検証
func TestAuthenticate_FirstLogin_IsNewUser(t *testing.T) {
	loginAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	verifier := &mockVerifier{
		verifyFn: func(_ context.Context, _ string) (*token.Claims, error) {
			return verifiedClaims(), nil
		},
	}
	dir := &mockDirectory{
		resolveOrCreateFn: func(_ context.Context, _ *token.Claims) (*model.User, error) {
			// JIT作成直後のユーザー: last_login_atは未設定
			return &model.User{ID: "internal-id", ExternalID: "google-user-123"}, nil
		},
		touchLoginFn: func(_ context.Context, userID string) (time.Time, error) {
			if userID != "internal-id" {
				t.Errorf("TouchLogin userID = %q, want internal-id", userID)
			}
			return loginAt, nil
		},
	}

	result, err := NewService(verifier, dir).Authenticate(context.Background(), "h.p.s")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	if !result.IsNewUser {
		t.Error("IsNewUser = false, want true for first login")
	}
	if result.User.LastLoginAt == nil || !result.User.LastLoginAt.Equal(loginAt) {
		t.Errorf("LastLoginAt = %v, want %v", result.User.LastLoginAt, loginAt)
	}
}

// 2回目以降のログインはisNewUser=falseとなることを検証
func TestAuthenticate_ReturningUser_NotNew(t *testing.T) {
	previous := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	verifier := &mockVerifier{
		verifyFn: func(_ context.Context, _ string) (*token.Claims, error) {
			return verifiedClaims(), nil
		},
	}
	dir := &mockDirectory{
		resolveOrCreateFn: func(_ context.Context, _ *token.Claims) (*model.User, error) {
			return &model.User{
				ID:          "internal-id",
				LastLoginAt: &previous,
				UpdatedAt:   previous,
			}, nil
		},
		touchLoginFn: func(_ context.Context, _ string) (time.Time, error) {
			return previous.Add(time.Hour), nil
		},
	}

	result, err := NewService(verifier, dir).Authenticate(context.Background(), "h.p.s")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	if result.IsNewUser {
		t.Error("IsNewUser = true, want false for returning user")
	}
	// last_login_atは前回のupdated_atより後に更新されること
	if !result.User.LastLoginAt.After(previous) {
		t.Errorf("LastLoginAt = %v, want after %v", result.User.LastLoginAt, previous)
	}
}

// トークン検証失敗は一般的な認証エラーに変換されることを検証
func TestAuthenticate_InvalidToken_GenericAuthError(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(_ context.Context, _ string) (*token.Claims, error) {
			return nil, token.ErrTokenExpired
		},
	}
	dir := &mockDirectory{}

	_, err := NewService(verifier, dir).Authenticate(context.Background(), "h.p.s")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeAuthenticationRequired {
		t.Errorf("Code = %q, want AUTHENTICATION_REQUIRED", apiErr.Code)
	}
	// 失効という具体的な理由はメッセージに含めない
	if apiErr.Message != "ログインが必要です" {
		t.Errorf("Message = %q, want generic message", apiErr.Message)
	}
}

func TestAuthenticate_EmptySubject_Rejected(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(_ context.Context, _ string) (*token.Claims, error) {
			c := verifiedClaims()
			c.Subject = ""
			return c, nil
		},
	}

	_, err := NewService(verifier, &mockDirectory{}).Authenticate(context.Background(), "h.p.s")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAuthenticationRequired {
		t.Fatalf("error = %v, want AUTHENTICATION_REQUIRED", err)
	}
}

// ディレクトリのインフラ障害は認証エラーに誤分類されないことを検証
func TestAuthenticate_DirectoryFailure_NotMaskedAsAuthError(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(_ context.Context, _ string) (*token.Claims, error) {
			return verifiedClaims(), nil
		},
	}
	dir := &mockDirectory{
		resolveOrCreateFn: func(_ context.Context, _ *token.Claims) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}

	_, err := NewService(verifier, dir).Authenticate(context.Background(), "h.p.s")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Errorf("infrastructure error must not become APIError, got %v", apiErr)
	}
}

func TestAuthenticate_TouchLoginFailure_Propagated(t *testing.T) {
	verifier := &mockVerifier{
		verifyFn: func(_ context.Context, _ string) (*token.Claims, error) {
			return verifiedClaims(), nil
		},
	}
	dir := &mockDirectory{
		resolveOrCreateFn: func(_ context.Context, _ *token.Claims) (*model.User, error) {
			return &model.User{ID: "internal-id"}, nil
		},
		touchLoginFn: func(_ context.Context, _ string) (time.Time, error) {
			return time.Time{}, errors.New("connection refused")
		},
	}

	if _, err := NewService(verifier, dir).Authenticate(context.Background(), "h.p.s"); err == nil {
		t.Fatal("expected error")
	}
}
