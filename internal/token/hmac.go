package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtClaims はIdPが発行するJWTのボディ構造。
type jwtClaims struct {
	jwt.RegisteredClaims
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
	AppMetadata  AppMetadata  `json:"app_metadata"`
}

// HMACVerifier は共有シークレット（HS256）によるトークン検証を行う。
// JWKSエンドポイントを持たないIdP構成向けのフォールバック実装。
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

// HMACVerifierOption はHMACVerifierの生成オプション。
type HMACVerifierOption func(*HMACVerifier)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) HMACVerifierOption {
	return func(v *HMACVerifier) {
		v.now = now
	}
}

// NewHMACVerifier はHMACVerifierを生成する。
// issuer・audienceが空でない場合は、それぞれiss・audクレームの一致も検証する。
func NewHMACVerifier(secret, issuer, audience string, opts ...HMACVerifierOption) *HMACVerifier {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(clockSkewTolerance),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(audience))
	}

	v := &HMACVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(parserOpts...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify はトークンを検証し、標準化されたクレームを返す。
func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Claims, error) {
	if err := checkTokenShape(rawToken); err != nil {
		return nil, err
	}

	parsed := &jwtClaims{}
	_, err := v.parser.ParseWithClaims(rawToken, parsed, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}

	claims := toClaims(parsed)
	if err := claims.validate(v.now()); err != nil {
		return nil, err
	}

	return claims, nil
}

// toClaims はJWTボディを標準化ペイロードに変換する。
func toClaims(parsed *jwtClaims) *Claims {
	claims := &Claims{
		Subject:      parsed.Subject,
		Email:        parsed.Email,
		Issuer:       parsed.Issuer,
		UserMetadata: parsed.UserMetadata,
		AppMetadata:  parsed.AppMetadata,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims
}

// classifyJWTError はjwtライブラリのエラーをパッケージの検証エラーに変換する。
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ErrMissingClaims
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: unexpected audience", ErrInvalidSignature)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}

// compile-time interface check
var _ Verifier = (*HMACVerifier)(nil)
