// Package token はベアラートークンの検証と標準化されたクレームの抽出を提供する。
package token

import (
	"time"

	"github.com/hitoshi/taskboard/internal/model"
)

// clockSkewTolerance は有効期限判定で許容する時計のずれ。
const clockSkewTolerance = 30 * time.Second

// UserMetadata はIdPが発行するユーザープロフィール情報。
type UserMetadata struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// AppMetadata はIdPが発行する認証方式のメタデータ。
type AppMetadata struct {
	Provider  string   `json:"provider"`
	Providers []string `json:"providers"`
}

// Claims は検証済みトークンから抽出した標準化ペイロード。
// Subjectは外部IdPのユーザーID（外部ID）であり、内部ユーザーIDとは別物。
type Claims struct {
	Subject      string
	Email        string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Issuer       string
	UserMetadata UserMetadata
	AppMetadata  AppMetadata
}

// Provider はapp_metadata.providerをドメインのProvider型として返す。
func (c *Claims) Provider() model.Provider {
	return model.Provider(c.AppMetadata.Provider)
}

// validate は必須クレームと有効期限を検証する。
// 署名検証の後に呼ぶこと。
func (c *Claims) validate(now time.Time) error {
	if c.Subject == "" {
		return ErrMissingClaims
	}
	if c.Email == "" {
		return ErrMissingClaims
	}
	if c.ExpiresAt.IsZero() {
		return ErrMissingClaims
	}
	if now.After(c.ExpiresAt.Add(clockSkewTolerance)) {
		return ErrTokenExpired
	}
	return nil
}
