// Package directory は外部IDと内部ユーザーの対応付けとJITプロビジョニングを提供する。
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/token"
)

// Directory は内部ユーザーの解決・作成・ログイン記録を提供する。
type Directory struct {
	users     repository.UserRepository
	collector metrics.AuthCollector
	now       func() time.Time
}

// NewDirectory はDirectoryを生成する。collectorがnilの場合は記録しない。
func NewDirectory(users repository.UserRepository, collector metrics.AuthCollector) *Directory {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Directory{
		users:     users,
		collector: collector,
		now:       time.Now,
	}
}

// NewDirectoryWithClock は現在時刻の取得関数を差し替えたDirectoryを生成する。テスト用。
func NewDirectoryWithClock(users repository.UserRepository, now func() time.Time) *Directory {
	return &Directory{users: users, collector: metrics.NopCollector{}, now: now}
}

// Resolve は (externalID, provider) に対応する内部ユーザーを検索する。
// 見つからない場合は (nil, nil) を返し、作成は行わない。
// providerが許可リスト外の場合はDB検索を行わずにエラーを返す。
func (d *Directory) Resolve(ctx context.Context, provider model.Provider, externalID string) (*model.User, error) {
	if !provider.IsSupported() {
		return nil, model.NewUnsupportedProviderError(string(provider))
	}

	user, err := d.users.FindByProviderAndExternalID(ctx, provider, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return user, nil
}

// ResolveOrCreate は内部ユーザーを検索し、存在しない場合は検証済みクレームから
// JIT作成する。新規ユーザーのlast_login_atはnilで作成される（ログイン完了の
// 記録はTouchLoginの責務）。
//
// IDは必ず内部で新規生成するUUIDであり、外部IDから導出することはない。
// 同一 (provider, external_id) に対する並行呼び出しは一意制約により
// 1行しか作成されず、競合した側は既存行の再検索にフォールバックする。
func (d *Directory) ResolveOrCreate(ctx context.Context, claims *token.Claims) (*model.User, error) {
	provider := claims.Provider()
	if !provider.IsSupported() {
		return nil, model.NewUnsupportedProviderError(string(provider))
	}

	user, err := d.users.FindByProviderAndExternalID(ctx, provider, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	now := d.now()
	newUser := &model.User{
		ID:         uuid.New().String(),
		ExternalID: claims.Subject,
		Provider:   provider,
		Email:      claims.Email,
		Name:       claims.UserMetadata.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if claims.UserMetadata.AvatarURL != "" {
		avatarURL := claims.UserMetadata.AvatarURL
		newUser.AvatarURL = &avatarURL
	}
	if newUser.Name == "" {
		newUser.Name = claims.Email
	}

	created, err := d.users.Create(ctx, newUser)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if !created {
		// 並行する初回ログインに先を越された。既存行を取得し直す。
		existing, err := d.users.FindByProviderAndExternalID(ctx, provider, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to find user after conflict: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("user vanished after insert conflict: provider=%s", provider)
		}
		return existing, nil
	}

	d.collector.RecordUserProvisioned()
	slog.Info("new user provisioned",
		slog.String("user_id", newUser.ID),
		slog.String("provider", string(provider)),
		slog.String("email", newUser.Email),
	)
	return newUser, nil
}

// TouchLogin はログイン完了を記録し、更新後のlast_login_atを返す。
// 新規・既存を問わず、認証が成功するたびに明示的に呼ぶこと。
func (d *Directory) TouchLogin(ctx context.Context, userID string) (time.Time, error) {
	now := d.now()
	if err := d.users.TouchLogin(ctx, userID, now); err != nil {
		return time.Time{}, fmt.Errorf("failed to record login: %w", err)
	}
	return now, nil
}
