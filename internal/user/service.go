// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
)

// Service はユーザー管理のサービス層。
type Service struct {
	users repository.UserRepository
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository) *Service {
	return &Service{
		users: users,
	}
}

// GetProfile は内部ユーザーIDでプロフィールを取得する。
// ミドルウェアが解決済みのIDを渡す前提だが、認証とレスポンスの間に
// ユーザーが消えるケース（削除直後など）があるため、ここで改めて
// 存在確認を行い、見つからない場合はUSER_NOT_FOUNDを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, model.NewValidationError("ユーザーIDが指定されていません。")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
