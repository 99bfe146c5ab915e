package model

import "fmt"

// エラーカテゴリ。ハンドラー層でのHTTPステータス判定はこの値のみで行い、
// エラーメッセージの文字列照合は行わない。
const (
	// CategoryAuth は認証エラー（401）。クライアントへは原因を特定しない
	// 一般的なメッセージのみを返す。
	CategoryAuth = "auth"
	// CategoryValidation は入力値エラー（400）。クライアントが自力で修正
	// できるよう、何が不正かを具体的に伝える。
	CategoryValidation = "validation"
	// CategoryNotFound は認証後のリソース未検出エラー（404）。
	CategoryNotFound = "not_found"
	// CategorySystem はインフラ起因のエラー（500）。詳細はログにのみ記録し、
	// クライアントへは一般的なメッセージを返す。
	CategorySystem = "system"
)

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // クライアント向けメッセージ
	Category string // カテゴリ: auth, validation, not_found, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ErrCodeUnsupportedProvider    = "UNSUPPORTED_PROVIDER"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeTaskNotFound           = "TASK_NOT_FOUND"
	ErrCodeValidationError        = "VALIDATION_ERROR"
	ErrCodeInternalError          = "INTERNAL_SERVER_ERROR"
)

// NewAuthenticationRequiredError は認証エラーを生成する。
// 資格情報の探索に悪用されないよう、失敗理由は含めない。
func NewAuthenticationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationRequired,
		Message:  "ログインが必要です",
		Category: CategoryAuth,
	}
}

// NewUnsupportedProviderError は未サポートのIdPが指定された場合のエラーを生成する。
// サーバー設定またはクライアント実装の不具合を示すシグナルであり、
// 例外的にprovider値をメッセージに含める。
func NewUnsupportedProviderError(provider string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedProvider,
		Message:  fmt.Sprintf("サポートされていない認証プロバイダーです: %s", provider),
		Category: CategoryAuth,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryNotFound,
	}
}

// NewTaskNotFoundError はタスクが見つからない場合のエラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: CategoryNotFound,
	}
}

// NewValidationError は入力値エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationError,
		Message:  message,
		Category: CategoryValidation,
	}
}

// NewInternalError はインフラ起因のエラーを生成する。
// クライアントへ内部詳細を漏らさないため、メッセージは固定とする。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternalError,
		Message:  "内部エラーが発生しました。しばらく待ってから再度お試しください。",
		Category: CategorySystem,
	}
}
