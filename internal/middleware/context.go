// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/taskboard/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストに内部ユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// claimsContextKey は検証済みクレームを格納するためのキー（監査用）。
	claimsContextKey = contextKey("claims")
)

// UserIDFromContext はリクエストコンテキストから内部ユーザーIDを取得する。
// AuthMiddlewareを通過したリクエストでのみ有効。値が欠落または空の場合は
// エラーを返す（ミドルウェアが保証するはずだが、ハンドラー側でも再検証する）。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストに内部ユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ClaimsFromContext はリクエストコンテキストから検証済みクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	return claims, ok
}

// ContextWithClaims はコンテキストに検証済みクレームを注入する。
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
