package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/taskboard/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, external_id, provider, email, name, avatar_url, created_at, updated_at, last_login_at`

// scanUser は1行分のユーザーレコードをスキャンする。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.ExternalID, &user.Provider, &user.Email, &user.Name,
		&user.AvatarURL, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByProviderAndExternalID は (provider, external_id) でユーザーを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByProviderAndExternalID(ctx context.Context, provider model.Provider, externalID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND external_id = $2`,
		string(provider), externalID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by external ID: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。(provider, external_id) の一意制約と競合した
// 場合はINSERTを行わずcreated=falseを返す。呼び出し側は再検索で既存行を
// 取得すること。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, external_id, provider, email, name, avatar_url, created_at, updated_at, last_login_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
		 ON CONFLICT (provider, external_id) DO NOTHING`,
		user.ID, user.ExternalID, string(user.Provider), user.Email, user.Name,
		user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

// TouchLogin はlast_login_atとupdated_atを指定時刻に更新する。
func (r *PostgresUserRepo) TouchLogin(ctx context.Context, id string, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("failed to touch login: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
