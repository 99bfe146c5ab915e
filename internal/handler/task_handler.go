package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	List(ctx context.Context, userID, statusFilter string) ([]*model.Task, error)
	Get(ctx context.Context, taskID string) (*model.Task, error)
	Create(ctx context.Context, userID string, input task.CreateInput) (*model.Task, error)
	Update(ctx context.Context, taskID string, input task.UpdateInput) (*model.Task, error)
	Replace(ctx context.Context, taskID string, input task.CreateInput) (*model.Task, error)
	Delete(ctx context.Context, taskID string) error
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{
		service: service,
	}
}

// --- リクエスト・レスポンス型 ---

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueAt       *time.Time `json:"dueAt"`
}

// updateTaskRequest はタスク更新リクエストのボディ。
// nilフィールドは変更しない部分更新。dueAtにnullを明示した場合はクリアする。
type updateTaskRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Status      *string          `json:"status"`
	DueAt       *json.RawMessage `json:"dueAt"`
}

// taskResponse はタスクのAPIレスポンス。
type taskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueAt       *time.Time `json:"dueAt"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// taskListResponse はタスク一覧のレスポンス。
type taskListResponse struct {
	Success bool           `json:"success"`
	Data    []taskResponse `json:"data"`
}

// taskDetailResponse はタスク単体のレスポンス。
type taskDetailResponse struct {
	Success bool         `json:"success"`
	Data    taskResponse `json:"data"`
}

// toTaskResponse はmodel.TaskからAPIレスポンスに変換する。
func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		DueAt:       t.DueAt,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ListTasks は認証済みユーザーのタスク一覧を返す。
// GET /api/tasks?status=todo|in_progress|done
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	tasks, err := h.service.List(r.Context(), userID, r.URL.Query().Get("status"))
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	data := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		data = append(data, toTaskResponse(t))
	}

	writeJSONResponse(w, http.StatusOK, taskListResponse{
		Success: true,
		Data:    data,
	})
}

// GetTask はタスク詳細を返す。RLSにより他ユーザーのタスクは不可視となり、
// 存在しないIDと同じく404を返す。
// GET /api/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, taskDetailResponse{
		Success: true,
		Data:    toTaskResponse(t),
	})
}

// CreateTask はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの形式が不正です。"))
		return
	}

	t, err := h.service.Create(r.Context(), userID, task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		DueAt:       req.DueAt,
	})
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, taskDetailResponse{
		Success: true,
		Data:    toTaskResponse(t),
	})
}

// UpdateTask はタスクを部分更新する。
// PATCH /api/tasks/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの形式が不正です。"))
		return
	}

	input := task.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	}

	// dueAtは「省略（変更なし）」「null（クリア）」「値（設定）」を区別する。
	if req.DueAt != nil {
		if string(*req.DueAt) == "null" {
			input.ClearDueAt = true
		} else {
			var dueAt time.Time
			if err := json.Unmarshal(*req.DueAt, &dueAt); err != nil {
				middleware.WriteErrorResponse(w, http.StatusBadRequest,
					model.NewValidationError("dueAtの形式が不正です。"))
				return
			}
			input.DueAt = &dueAt
		}
	}

	t, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, taskDetailResponse{
		Success: true,
		Data:    toTaskResponse(t),
	})
}

// ReplaceTask はタスクの内容を全置換する。省略されたフィールドはゼロ値に戻る。
// PUT /api/tasks/{id}
func (h *TaskHandler) ReplaceTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("リクエストボディの形式が不正です。"))
		return
	}

	t, err := h.service.Replace(r.Context(), chi.URLParam(r, "id"), task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		DueAt:       req.DueAt,
	})
	if err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, taskDetailResponse{
		Success: true,
		Data:    toTaskResponse(t),
	})
}

// DeleteTask はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
