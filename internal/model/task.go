package model

import "time"

// TaskStatus はタスクの進行状態を表す。
type TaskStatus string

const (
	// TaskStatusTodo は未着手のタスクを示す。
	TaskStatusTodo TaskStatus = "todo"
	// TaskStatusInProgress は進行中のタスクを示す。
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusDone は完了したタスクを示す。
	TaskStatusDone TaskStatus = "done"
)

// IsValid はステータス値が定義済みのいずれかであるかを返す。
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task はユーザーが管理するタスクを表す。
// UserIDはusersテーブルの内部UUIDへの外部キーであり、RLSポリシーの述語でもある。
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      TaskStatus
	DueAt       *time.Time
	CompletedAt *time.Time // Status = done になった時刻。未完了ならnil
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
