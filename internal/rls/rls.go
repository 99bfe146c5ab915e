// Package rls はPostgreSQLのRow Level Securityコンテキスト管理を提供する。
//
// タスクなどユーザー所有データへのクエリは、同一トランザクション内で
// セッション変数 app.current_user_id に内部ユーザーIDを束縛した上で
// 実行しなければならない。SET LOCALによる設定はトランザクション境界を
// 越えて生存しないため、スコープ設定とクエリ実行は必ず同じ
// トランザクションで行う。
package rls

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Querier はクエリ実行のインターフェース。*sql.DBと*sql.Txの共通部分。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx はRLSスコープ付きトランザクション。*sql.Txが実装する。
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Setter はトランザクションへのRLSコンテキスト設定を行う。
type Setter struct {
	db TxBeginner
}

// NewSetter はSetterを生成する。
func NewSetter(db TxBeginner) *Setter {
	return &Setter{db: db}
}

// SetCurrentUser はトランザクションのセッション変数に内部ユーザーIDを束縛する。
// userIDが構文的に正しいUUIDでない場合は、不正な値でスコープするのではなく
// 即座にエラーを返す。ここでの失敗は認証失敗ではなくインフラ障害であり、
// 呼び出し側は500系として扱うこと（認証自体は成功している）。
func (s *Setter) SetCurrentUser(ctx context.Context, tx Querier, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("invalid user ID for RLS context: %w", err)
	}

	// set_config(..., true) はSET LOCALと等価で、トランザクション終了時に破棄される。
	if _, err := tx.ExecContext(ctx,
		`SELECT set_config('app.current_user_id', $1, true)`,
		userID,
	); err != nil {
		return fmt.Errorf("failed to set RLS context: %w", err)
	}

	return nil
}

// BeginScoped はトランザクションを開始し、RLSコンテキストを設定して返す。
// 返されたトランザクションのコミット/ロールバックは呼び出し側の責務。
func (s *Setter) BeginScoped(ctx context.Context, userID string) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := s.SetCurrentUser(ctx, tx, userID); err != nil {
		tx.Rollback()
		return nil, err
	}

	return tx, nil
}

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// txContextKey はリクエストコンテキストにRLSスコープ付きトランザクションを
// 格納するためのキー。
var txContextKey = contextKey("rls_tx")

// ContextWithTx はコンテキストにRLSスコープ付きトランザクションを注入する。
func ContextWithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txContextKey, tx)
}

// TxFromContext はコンテキストからRLSスコープ付きトランザクションを取得する。
func TxFromContext(ctx context.Context) (Tx, bool) {
	tx, ok := ctx.Value(txContextKey).(Tx)
	return tx, ok
}

// QuerierFromContext はコンテキストのトランザクションを返し、
// 存在しない場合はfallbackを返す。リポジトリ層での利用を想定する。
func QuerierFromContext(ctx context.Context, fallback Querier) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return fallback
}
