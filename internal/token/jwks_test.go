package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

func validPayload(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()

	body := map[string]any{
		"sub":   "google-user-123",
		"email": "user@example.com",
		"iss":   "https://issuer.example.com",
		"iat":   time.Now().Add(-time.Minute).Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{
			"name":       "Test User",
			"avatar_url": "https://example.com/avatar.png",
		},
		"app_metadata": map[string]any{
			"provider":  "google",
			"providers": []string{"google"},
		},
	}
	if mutate != nil {
		mutate(body)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return payload
}

func TestJWKSVerifier_ValidToken_ReturnsClaims(t *testing.T) {
	payload := validPayload(t, nil)
	keySet := &countingKeySet{
		verifyFunc: func(_ context.Context, _ string) ([]byte, error) {
			return payload, nil
		},
	}
	v := NewJWKSVerifierWithKeySet(keySet, "https://issuer.example.com", "", time.Second, nil)

	claims, err := v.Verify(context.Background(), "h.p.s")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if claims.Subject != "google-user-123" {
		t.Errorf("Subject = %q, want google-user-123", claims.Subject)
	}
	if claims.UserMetadata.Name != "Test User" {
		t.Errorf("UserMetadata.Name = %q, want Test User", claims.UserMetadata.Name)
	}
	if string(claims.Provider()) != "google" {
		t.Errorf("Provider() = %q, want google", claims.Provider())
	}
	if keySet.calls != 1 {
		t.Errorf("key set calls = %d, want 1", keySet.calls)
	}
}

func TestJWKSVerifier_SignatureError_IsAuthError(t *testing.T) {
	keySet := &countingKeySet{
		verifyFunc: func(_ context.Context, _ string) ([]byte, error) {
			return nil, errors.New("failed to verify id token signature")
		},
	}
	v := NewJWKSVerifierWithKeySet(keySet, "", "", time.Second, nil)

	_, err := v.Verify(context.Background(), "h.p.s")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() error = %v, want ErrInvalidSignature", err)
	}
}

// 鍵取得のタイムアウトは認証エラーとして扱われることを検証（500に昇格させない）
func TestJWKSVerifier_FetchTimeout_IsAuthError(t *testing.T) {
	keySet := &countingKeySet{
		verifyFunc: func(ctx context.Context, _ string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	v := NewJWKSVerifierWithKeySet(keySet, "", "", 10*time.Millisecond, nil)

	_, err := v.Verify(context.Background(), "h.p.s")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() error = %v, want ErrInvalidSignature", err)
	}
	if !IsAuthError(err) {
		t.Errorf("timeout should be an auth error, got %v", err)
	}
}

func TestJWKSVerifier_IssuerMismatch_Rejected(t *testing.T) {
	payload := validPayload(t, func(body map[string]any) {
		body["iss"] = "https://attacker.example.com"
	})
	keySet := &countingKeySet{
		verifyFunc: func(_ context.Context, _ string) ([]byte, error) {
			return payload, nil
		},
	}
	v := NewJWKSVerifierWithKeySet(keySet, "https://issuer.example.com", "", time.Second, nil)

	_, err := v.Verify(context.Background(), "h.p.s")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() error = %v, want ErrInvalidSignature", err)
	}
}

func TestJWKSVerifier_AudienceMatch_Accepted(t *testing.T) {
	payload := validPayload(t, func(body map[string]any) {
		body["aud"] = []string{"taskboard-api", "other-service"}
	})
	keySet := &countingKeySet{
		verifyFunc: func(_ context.Context, _ string) ([]byte, error) {
			return payload, nil
		},
	}
	v := NewJWKSVerifierWithKeySet(keySet, "", "taskboard-api", time.Second, nil)

	if _, err := v.Verify(context.Background(), "h.p.s"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestJWKSVerifier_AudienceMismatch_Rejected(t *testing.T) {
	payload := validPayload(t, func(body map[string]any) {
		body["aud"] = "other-service"
	})
	keySet := &countingKeySet{
		verifyFunc: func(_ context.Context, _ string) ([]byte, error) {
			return payload, nil
		},
	}
	v := NewJWKSVerifierWithKeySet(keySet, "", "taskboard-api", time.Second, nil)

	_, err := v.Verify(context.Background(), "h.p.s")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() error = %v, want ErrInvalidSignature", err)
	}
	if !IsAuthError(err) {
		t.Errorf("audience mismatch should be an auth error, got %v", err)
	}
}

func TestJWKSVerifier_ExpiredPayload_Rejected(t *testing.T) {
	payload := validPayload(t, func(body map[string]any) {
		body["exp"] = time.Now().Add(-time.Minute).Unix()
	})
	keySet := &countingKeySet{
		verifyFunc: func(_ context.Context, _ string) ([]byte, error) {
			return payload, nil
		},
	}
	v := NewJWKSVerifierWithKeySet(keySet, "", "", time.Second, nil)

	_, err := v.Verify(context.Background(), "h.p.s")
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestJWKSVerifier_InvalidPayloadJSON_Rejected(t *testing.T) {
	keySet := &countingKeySet{
		verifyFunc: func(_ context.Context, _ string) ([]byte, error) {
			return []byte("not json"), nil
		},
	}
	v := NewJWKSVerifierWithKeySet(keySet, "", "", time.Second, nil)

	_, err := v.Verify(context.Background(), "h.p.s")
	if !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("Verify() error = %v, want ErrTokenMalformed", err)
	}
}

// 実際のJWKSエンドポイント（httptest）に対するエンドツーエンドの検証。
// 鍵セットはキャッシュされ、検証のたびにエンドポイントへ問い合わせないことも確認する。
func TestJWKSVerifier_RemoteKeySet_VerifiesRS256Token(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	const kid = "test-key-1"
	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}

	var fetches atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwks)
	}))
	defer server.Close()

	claims := &jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "google-user-123",
			Issuer:    "https://issuer.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:       "user@example.com",
		AppMetadata: AppMetadata{Provider: "google"},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := NewJWKSVerifierWithKeySet(
		oidc.NewRemoteKeySet(ctx, server.URL),
		"https://issuer.example.com",
		"",
		5*time.Second,
		nil,
	)

	for i := 0; i < 3; i++ {
		got, err := v.Verify(context.Background(), raw)
		if err != nil {
			t.Fatalf("Verify() #%d error = %v", i+1, err)
		}
		if got.Subject != "google-user-123" {
			t.Errorf("Subject = %q, want google-user-123", got.Subject)
		}
	}

	if n := fetches.Load(); n != 1 {
		t.Errorf("JWKS endpoint was fetched %d times, want 1 (cached)", n)
	}
}
