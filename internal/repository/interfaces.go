// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/taskboard/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByProviderAndExternalID は (provider, external_id) でユーザーを検索する。
	// 見つからない場合はnilを返す。検索自体はフィールドを一切変更しない。
	FindByProviderAndExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.User, error)

	// Create はユーザーを作成する。(provider, external_id) の一意制約と
	// 競合した場合は作成せずにcreated=falseを返す。並行する初回ログインの
	// 冪等性はこの動作に依存する。
	Create(ctx context.Context, user *model.User) (created bool, err error)

	// TouchLogin はlast_login_atとupdated_atを指定時刻に更新する。
	TouchLogin(ctx context.Context, id string, now time.Time) error
}

// TaskRepository はタスクデータの永続化インターフェース。
// 全クエリはRLSスコープ付きトランザクション内で実行されることを前提とする
// （rls.QuerierFromContext参照）。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// ListByUser はユーザーのタスク一覧をcreated_at降順で返す。
	// statusが空でない場合はステータスで絞り込む。
	ListByUser(ctx context.Context, userID string, status model.TaskStatus) ([]*model.Task, error)

	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// Update は既存タスクを上書き更新する。
	Update(ctx context.Context, task *model.Task) error

	// Delete は指定IDのタスクを削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
}
