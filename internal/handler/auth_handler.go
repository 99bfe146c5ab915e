// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Authenticate はトークンを検証し、内部ユーザーを解決（必要なら作成）する。
	Authenticate(ctx context.Context, rawToken string) (*auth.Result, error)
}

// OAuthProviderRegistry はWebフロー用のプロバイダー選択インターフェース。
type OAuthProviderRegistry interface {
	Get(p model.Provider) (auth.OAuthProvider, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL        string
	CookieDomain   string
	CookieSecure   bool
	TokenMaxLength int // verifyエンドポイントが受け付けるトークンの最大長
}

// AuthHandler はトークン検証とOAuth Webフローを扱うHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	registry OAuthProviderRegistry
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, registry OAuthProviderRegistry, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		registry: registry,
		config:   config,
	}
}

// verifyTokenRequest はトークン検証リクエストのボディ。
type verifyTokenRequest struct {
	Token string `json:"token"`
}

// verifyTokenResponse はトークン検証成功時のレスポンス。
type verifyTokenResponse struct {
	Success   bool         `json:"success"`
	User      userResponse `json:"user"`
	IsNewUser bool         `json:"isNewUser"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"externalId"`
	Provider    string     `json:"provider"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	AvatarURL   *string    `json:"avatarUrl"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:          user.ID,
		ExternalID:  user.ExternalID,
		Provider:    string(user.Provider),
		Email:       user.Email,
		Name:        user.Name,
		AvatarURL:   user.AvatarURL,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

// VerifyToken はボディで渡されたトークンを検証し、ユーザーを確定する。
// JITプロビジョニングが行われるのはこのエンドポイントのみ。
// POST /api/auth/verify
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		middleware.WriteErrorResponse(w, http.StatusUnsupportedMediaType,
			model.NewValidationError("Content-Typeはapplication/jsonを指定してください。"))
		return
	}

	var req verifyTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの形式が不正です。"))
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Token cannot be empty"))
		return
	}
	if h.config.TokenMaxLength > 0 && len(token) > h.config.TokenMaxLength {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("トークンが長すぎます。"))
		return
	}

	result, err := h.service.Authenticate(r.Context(), token)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, verifyTokenResponse{
		Success:   true,
		User:      toUserResponse(result.User),
		IsNewUser: result.IsNewUser,
	})
}

// Login はOAuth認可フローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider, err := h.registry.Get(model.Provider(chi.URLParam(r, "provider")))
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。認可コードをIDトークンに交換し、
// VerifyTokenと同じ認証パイプラインに通してからフロントエンドへ戻す。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, err := h.registry.Get(model.Provider(chi.URLParam(r, "provider")))
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("stateパラメータが不正です。"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得と交換
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("認可コードがありません。"))
		return
	}

	rawIDToken, err := provider.ExchangeCode(r.Context(), code)
	if err != nil {
		slog.Error("oauth code exchange failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	// 3. 通常のトークン検証と同じパイプラインで認証
	if _, err := h.service.Authenticate(r.Context(), rawIDToken); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	// 4. フロントエンドへリダイレクト。トークンはサーバーログに残らないよう
	// フラグメントで渡す。
	http.Redirect(w, r, h.config.BaseURL+"/#token="+url.QueryEscape(rawIDToken), http.StatusTemporaryRedirect)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
