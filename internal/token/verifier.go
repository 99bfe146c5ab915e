package token

import (
	"context"
	"errors"
	"strings"
)

// 検証エラー。ミドルウェアはエラー型でのみ分類し、メッセージの文字列照合は行わない。
// いずれも認証エラーとして扱われ、プロセスを停止させることはない。
var (
	// ErrTokenRequired はトークンが空または空白のみの場合のエラー。
	// ネットワークアクセスや署名検証より前に返される。
	ErrTokenRequired = errors.New("Token is required")
	// ErrTokenMalformed はトークンがJWTのコンパクト形式（3セグメント）でない場合のエラー。
	ErrTokenMalformed = errors.New("token is malformed")
	// ErrInvalidSignature は署名検証に失敗した場合のエラー。
	ErrInvalidSignature = errors.New("token signature is invalid")
	// ErrTokenExpired は有効期限切れ（時計ずれ許容幅を超過）のエラー。
	ErrTokenExpired = errors.New("token is expired")
	// ErrMissingClaims は必須クレーム（sub, email, exp）が欠落している場合のエラー。
	ErrMissingClaims = errors.New("token is missing required claims")
	// ErrNoVerifier は検証手段（JWKS URL / 共有鍵）が未設定の場合のエラー。
	ErrNoVerifier = errors.New("no token verifier configured")
)

// Verifier はベアラートークンを検証し、標準化されたクレームを返す。
// 検証順序: 構造 → 署名 → 有効期限（30秒の時計ずれ許容）→ 必須クレーム。
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// checkTokenShape はトークンの前提条件を検証する。
// 空・空白のみのトークンはI/Oを一切行わずに拒否する。
func checkTokenShape(rawToken string) error {
	if strings.TrimSpace(rawToken) == "" {
		return ErrTokenRequired
	}
	if strings.Count(rawToken, ".") != 2 {
		return ErrTokenMalformed
	}
	return nil
}

// IsAuthError はトークン検証エラーかどうかを返す。
// 検証エラーはすべて認証失敗（401）として扱う。
func IsAuthError(err error) bool {
	return errors.Is(err, ErrTokenRequired) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrMissingClaims) ||
		errors.Is(err, ErrNoVerifier)
}

// NoopVerifier は検証手段が未設定の場合に使用するフェイルクローズ実装。
// すべてのトークンを拒否する。
type NoopVerifier struct{}

// Verify は常にErrNoVerifierを返す。空トークンの即時拒否のみ先行する。
func (NoopVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, ErrTokenRequired
	}
	return nil, ErrNoVerifier
}
