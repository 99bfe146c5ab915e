package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/rls"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
//
// クエリはコンテキストにRLSスコープ付きトランザクションが存在する場合は
// そのトランザクション上で実行する。RLSポリシーにより、結果は
// app.current_user_id に束縛されたユーザーの行に限定される。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

const taskColumns = `id, user_id, title, description, status, due_at, completed_at, created_at, updated_at`

// scanTask は1行分のタスクレコードをスキャンする。
func scanTask(row *sql.Row) (*model.Task, error) {
	task := &model.Task{}
	err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description, &task.Status,
		&task.DueAt, &task.CompletedAt, &task.CreatedAt, &task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
// RLSにより他ユーザーのタスクは存在しないものとして扱われる。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	q := rls.QuerierFromContext(ctx, r.db)
	task, err := scanTask(q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find task by ID: %w", err)
	}
	return task, nil
}

// ListByUser はユーザーのタスク一覧をcreated_at降順で返す。
// statusが空でない場合はステータスで絞り込む。
func (r *PostgresTaskRepo) ListByUser(ctx context.Context, userID string, status model.TaskStatus) ([]*model.Task, error) {
	q := rls.QuerierFromContext(ctx, r.db)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task := &model.Task{}
		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Description, &task.Status,
			&task.DueAt, &task.CompletedAt, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}

	return tasks, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	q := rls.QuerierFromContext(ctx, r.db)
	_, err := q.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, status, due_at, completed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.UserID, task.Title, task.Description, string(task.Status),
		task.DueAt, task.CompletedAt, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Update は既存タスクを上書き更新する。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) error {
	q := rls.QuerierFromContext(ctx, r.db)
	result, err := q.ExecContext(ctx,
		`UPDATE tasks
		 SET title = $2, description = $3, status = $4, due_at = $5, completed_at = $6, updated_at = $7
		 WHERE id = $1`,
		task.ID, task.Title, task.Description, string(task.Status),
		task.DueAt, task.CompletedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s", task.ID)
	}
	return nil
}

// Delete は指定IDのタスクを削除する。対象が存在しない場合はfalseを返す。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) (bool, error) {
	q := rls.QuerierFromContext(ctx, r.db)
	result, err := q.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
