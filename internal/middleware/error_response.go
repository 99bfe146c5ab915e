package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskboard/internal/model"
)

// ErrorBody はAPIエラーレスポンスのerrorフィールド。
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse はAPIエラーレスポンスの統一フォーマット。
// すべてのエンドポイントがこの形でエラーを返す。
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Error: ErrorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// StatusForCategory はエラーカテゴリをHTTPステータスコードに変換する。
// 分類はカテゴリのみで行い、メッセージの文字列照合は行わない。
func StatusForCategory(category string) int {
	switch category {
	case model.CategoryAuth:
		return http.StatusUnauthorized
	case model.CategoryValidation:
		return http.StatusBadRequest
	case model.CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError はサービス層から返されたエラーをHTTPレスポンスに変換する。
// APIError以外（分類されないエラー）はインフラ障害として500を返す。
// 認証エラーへ誤分類すると実際の障害を覆い隠すため、デフォルトは必ず500とし、
// 生のエラー文字列はログにのみ記録する。
func HandleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForCategory(apiErr.Category), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
