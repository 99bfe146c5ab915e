// Package task はタスク管理のドメインロジックを提供する。
package task

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/security"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
)

// CreateInput はタスク作成の入力値。
type CreateInput struct {
	Title       string
	Description string
	Status      string
	DueAt       *time.Time
}

// UpdateInput はタスク更新の入力値。nilフィールドは変更しない部分更新を行う。
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *string
	DueAt       *time.Time
	ClearDueAt  bool
}

// Service はタスク管理のサービス層。
// 全操作はAuthMiddlewareが確立したRLSスコープ内で実行されることを前提とする。
type Service struct {
	tasks     repository.TaskRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(tasks repository.TaskRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{
		tasks:     tasks,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List はユーザーのタスク一覧を返す。statusFilterが空でない場合は絞り込む。
func (s *Service) List(ctx context.Context, userID, statusFilter string) ([]*model.Task, error) {
	var status model.TaskStatus
	if statusFilter != "" {
		status = model.TaskStatus(statusFilter)
		if !status.IsValid() {
			return nil, model.NewValidationError(
				fmt.Sprintf("無効なステータスです: %s（todo, in_progress, done のいずれかを指定してください）", statusFilter))
		}
	}

	tasks, err := s.tasks.ListByUser(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Get は指定IDのタスクを返す。存在しない（またはRLSにより不可視の）場合は
// TASK_NOT_FOUNDエラーを返す。
func (s *Service) Get(ctx context.Context, taskID string) (*model.Task, error) {
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, model.NewValidationError("タスクIDの形式が不正です。")
	}

	t, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return t, nil
}

// Create は入力を検証してタスクを作成する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Task, error) {
	title := s.sanitizer.Sanitize(input.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}

	description := s.sanitizer.Sanitize(input.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, model.NewValidationError(
			fmt.Sprintf("説明は%d文字以内で入力してください。", maxDescriptionLength))
	}

	status := model.TaskStatusTodo
	if input.Status != "" {
		status = model.TaskStatus(input.Status)
		if !status.IsValid() {
			return nil, model.NewValidationError(
				fmt.Sprintf("無効なステータスです: %s", input.Status))
		}
	}

	now := s.now()
	t := &model.Task{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Status:      status,
		DueAt:       input.DueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == model.TaskStatusDone {
		t.CompletedAt = &now
	}

	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// Update は既存タスクを部分更新する。
// ステータスがdoneに遷移した時点でcompleted_atを記録し、
// done以外に戻した場合はクリアする。
func (s *Service) Update(ctx context.Context, taskID string, input UpdateInput) (*model.Task, error) {
	t, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := s.sanitizer.Sanitize(*input.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		t.Title = title
	}

	if input.Description != nil {
		description := s.sanitizer.Sanitize(*input.Description)
		if utf8.RuneCountInString(description) > maxDescriptionLength {
			return nil, model.NewValidationError(
				fmt.Sprintf("説明は%d文字以内で入力してください。", maxDescriptionLength))
		}
		t.Description = description
	}

	now := s.now()

	if input.Status != nil {
		status := model.TaskStatus(*input.Status)
		if !status.IsValid() {
			return nil, model.NewValidationError(
				fmt.Sprintf("無効なステータスです: %s", *input.Status))
		}
		if status == model.TaskStatusDone && t.Status != model.TaskStatusDone {
			t.CompletedAt = &now
		}
		if status != model.TaskStatusDone {
			t.CompletedAt = nil
		}
		t.Status = status
	}

	if input.ClearDueAt {
		t.DueAt = nil
	} else if input.DueAt != nil {
		t.DueAt = input.DueAt
	}

	t.UpdatedAt = now

	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return t, nil
}

// Replace は既存タスクの内容を入力値で全置換する。
// 部分更新のUpdateと異なり、入力にないフィールドはゼロ値（説明は空、期限はなし、
// ステータスはtodo）へ戻る。完了日時の遷移規則はUpdateと同じ。
func (s *Service) Replace(ctx context.Context, taskID string, input CreateInput) (*model.Task, error) {
	t, err := s.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	title := s.sanitizer.Sanitize(input.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}

	description := s.sanitizer.Sanitize(input.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, model.NewValidationError(
			fmt.Sprintf("説明は%d文字以内で入力してください。", maxDescriptionLength))
	}

	status := model.TaskStatusTodo
	if input.Status != "" {
		status = model.TaskStatus(input.Status)
		if !status.IsValid() {
			return nil, model.NewValidationError(
				fmt.Sprintf("無効なステータスです: %s", input.Status))
		}
	}

	now := s.now()

	if status == model.TaskStatusDone && t.Status != model.TaskStatusDone {
		t.CompletedAt = &now
	}
	if status != model.TaskStatusDone {
		t.CompletedAt = nil
	}

	t.Title = title
	t.Description = description
	t.Status = status
	t.DueAt = input.DueAt
	t.UpdatedAt = now

	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to replace task: %w", err)
	}
	return t, nil
}

// Delete は指定IDのタスクを削除する。存在しない場合はTASK_NOT_FOUNDエラーを返す。
func (s *Service) Delete(ctx context.Context, taskID string) error {
	if _, err := uuid.Parse(taskID); err != nil {
		return model.NewValidationError("タスクIDの形式が不正です。")
	}

	deleted, err := s.tasks.Delete(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if !deleted {
		return model.NewTaskNotFoundError(taskID)
	}
	return nil
}

// validateTitle はサニタイズ済みタイトルを検証する。
func validateTitle(title string) error {
	if title == "" {
		return model.NewValidationError("タイトルを入力してください。")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return model.NewValidationError(
			fmt.Sprintf("タイトルは%d文字以内で入力してください。", maxTitleLength))
	}
	return nil
}
