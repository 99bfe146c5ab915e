// Package auth はトークン認証フローとJITプロビジョニングのユースケースを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/token"
)

// Result は認証ユースケースの結果。
type Result struct {
	User *model.User
	// IsNewUser はこの認証が初回ログインだったかどうか。
	// last_login_at更新前の値（nilなら初回）から判定する。
	IsNewUser bool
}

// UserDirectory は認証サービスが必要とするユーザー解決インターフェース。
type UserDirectory interface {
	ResolveOrCreate(ctx context.Context, claims *token.Claims) (*model.User, error)
	TouchLogin(ctx context.Context, userID string) (time.Time, error)
}

// Service はトークン検証からユーザー確定までの認証ユースケースを提供する。
// JITプロビジョニングを行うのはこのユースケースのみであり、
// ミドルウェア経由の認証ではユーザーは作成されない。
type Service struct {
	verifier token.Verifier
	dir      UserDirectory
}

// NewService はServiceを生成する。
func NewService(verifier token.Verifier, dir UserDirectory) *Service {
	return &Service{
		verifier: verifier,
		dir:      dir,
	}
}

// Authenticate はトークンを検証し、対応する内部ユーザーを解決（必要なら作成）して
// ログインを記録する。
//
// エラーは型で分類される:
//   - トークン検証失敗 → 認証エラー（具体的な理由はログにのみ残す）
//   - 未サポートprovider → 認証エラー（provider名はクライアントに通知する）
//   - DB障害 → インフラエラー
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*Result, error) {
	claims, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		if token.IsAuthError(err) {
			slog.Warn("token verification failed", slog.String("error", err.Error()))
			return nil, model.NewAuthenticationRequiredError()
		}
		return nil, fmt.Errorf("token verification error: %w", err)
	}
	if claims.Subject == "" {
		return nil, model.NewAuthenticationRequiredError()
	}

	user, err := s.dir.ResolveOrCreate(ctx, claims)
	if err != nil {
		return nil, err
	}

	// 初回ログイン判定はlast_login_at更新前の値に基づく。
	isNew := user.IsFirstLogin()

	loginAt, err := s.dir.TouchLogin(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.LastLoginAt = &loginAt
	user.UpdatedAt = loginAt

	slog.Info("user authenticated",
		slog.String("user_id", user.ID),
		slog.String("provider", string(user.Provider)),
		slog.Bool("is_new_user", isNew),
	)

	return &Result{User: user, IsNewUser: isNew}, nil
}
