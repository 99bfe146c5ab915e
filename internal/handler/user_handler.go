package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// GetProfile は内部ユーザーIDでプロフィールを取得する。
	// ユーザーが存在しない場合はUSER_NOT_FOUNDエラーを返す。
	GetProfile(ctx context.Context, userID string) (*model.User, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// profileResponse はプロフィール取得のレスポンス。
type profileResponse struct {
	Success bool         `json:"success"`
	Data    userResponse `json:"data"`
}

// GetProfile は認証済みユーザー自身のプロフィールを返す。
// ミドルウェアがuserIDを保証するが、多層防御としてここでも再検証する。
// GET /api/user/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, profileResponse{
		Success: true,
		Data:    toUserResponse(user),
	})
}
