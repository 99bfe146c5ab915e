package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// KeySet は署名検証鍵セットのインターフェース。
// oidc.RemoteKeySetの部分集合として定義する。
type KeySet interface {
	VerifySignature(ctx context.Context, jwt string) ([]byte, error)
}

// JWKSVerifier はリモートJWKSエンドポイントの公開鍵によるトークン検証を行う。
//
// 鍵セットはoidc.RemoteKeySetがプロセス全体でキャッシュし、未知のkidによる
// 検証失敗時に1回だけ再取得する。鍵ローテーションには追従しつつ、
// IdPへの問い合わせがリクエストごとに発生することはない。
type JWKSVerifier struct {
	keySet       KeySet
	issuer       string
	audience     string
	fetchTimeout time.Duration
	now          func() time.Time
}

// NewJWKSVerifier はJWKSVerifierを生成する。
// issuer・audienceが空でない場合は、それぞれiss・audクレームの一致も検証する。
// ctxはリモート鍵セットの生存期間を制御するため、リクエストスコープではなく
// プロセススコープのcontextを渡すこと。
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer, audience string, fetchTimeout time.Duration) *JWKSVerifier {
	return &JWKSVerifier{
		keySet:       oidc.NewRemoteKeySet(ctx, jwksURL),
		issuer:       issuer,
		audience:     audience,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
	}
}

// NewJWKSVerifierWithKeySet は鍵セットを差し替えたJWKSVerifierを生成する。テスト用。
func NewJWKSVerifierWithKeySet(keySet KeySet, issuer, audience string, fetchTimeout time.Duration, now func() time.Time) *JWKSVerifier {
	if now == nil {
		now = time.Now
	}
	return &JWKSVerifier{
		keySet:       keySet,
		issuer:       issuer,
		audience:     audience,
		fetchTimeout: fetchTimeout,
		now:          now,
	}
}

// Verify はトークンを検証し、標準化されたクレームを返す。
// 鍵取得を含む署名検証には上限時間を設ける。タイムアウトは検証失敗
// （認証エラー）として扱い、インフラエラーには昇格させない。
func (v *JWKSVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	if err := checkTokenShape(rawToken); err != nil {
		return nil, err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
	defer cancel()

	payload, err := v.keySet.VerifySignature(verifyCtx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	parsed := &jwtClaims{}
	if err := json.Unmarshal(payload, parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if v.issuer != "" && parsed.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidSignature)
	}

	if v.audience != "" && !containsAudience(parsed.Audience, v.audience) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidSignature)
	}

	claims := toClaims(parsed)
	if err := claims.validate(v.now()); err != nil {
		return nil, err
	}

	return claims, nil
}

func containsAudience(aud []string, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ Verifier = (*JWKSVerifier)(nil)
var _ KeySet = (*oidc.RemoteKeySet)(nil)
