// Package model はドメインモデルを定義する。
package model

import "time"

// Provider は外部IdPの種別を表す。
type Provider string

const (
	// ProviderGoogle はGoogleアカウントによる認証を示す。
	ProviderGoogle Provider = "google"
	// ProviderGitHub はGitHubアカウントによる認証を示す。
	ProviderGitHub Provider = "github"
)

// supportedProviders はサポート対象のIdP許可リスト。
var supportedProviders = map[Provider]bool{
	ProviderGoogle: true,
	ProviderGitHub: true,
}

// IsSupported はproviderが許可リストに含まれるかを返す。
func (p Provider) IsSupported() bool {
	return supportedProviders[p]
}

// User はサービス利用ユーザーを表す。
// IDはアプリケーション内部で生成するUUIDであり、外部IdPのsubject（ExternalID）とは
// 常に独立している。外部IDを主キーに流用しないことでIdP側の識別子が
// 内部キーに波及することを防ぐ。
type User struct {
	ID          string
	ExternalID  string
	Provider    Provider
	Email       string
	Name        string
	AvatarURL   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time // 初回ログイン完了まではnil
}

// IsFirstLogin はこのユーザーがまだ一度もログインを完了していないかを返す。
// LastLoginAtの更新（TouchLogin）前に評価すること。
func (u *User) IsFirstLogin() bool {
	return u.LastLoginAt == nil
}
