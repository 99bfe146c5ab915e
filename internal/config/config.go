package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token verification
	// JWKSURLが設定されている場合はJWKSエンドポイントに対する署名検証を行い、
	// 未設定の場合はJWTSecretによる共有鍵（HS256）検証にフォールバックする。
	JWKSURL     string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Token
	TokenMaxLength int

	// JWKS fetch
	JWKSFetchTimeout time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// 署名検証用のシークレット（JWKS_URL / JWT_SECRET）はどちらか一方が必須だが、
// テスト環境を考慮して起動失敗ではなく警告ログに留める。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Token verification
	cfg.JWKSURL = os.Getenv("JWKS_URL")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.JWTIssuer = getEnvString("JWT_ISSUER", "")
	cfg.JWTAudience = getEnvString("JWT_AUDIENCE", "")
	if cfg.JWKSURL == "" && cfg.JWTSecret == "" {
		// 本番では必ずどちらかを設定すること。暗黙のデフォルト鍵は持たない。
		slog.Warn("neither JWKS_URL nor JWT_SECRET is set; token verification will reject all tokens")
	}

	// OAuth
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")

	// Optional fields with defaults
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.TokenMaxLength = getEnvInt("TOKEN_MAX_LENGTH", 4096)
	cfg.JWKSFetchTimeout = getEnvDuration("JWKS_FETCH_TIMEOUT", 5*time.Second)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
