package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Collector         metrics.AuthCollector
	BearerAuth        *middleware.BearerAuth
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string

	// 認証
	AuthService   AuthServiceInterface
	OAuthRegistry OAuthProviderRegistry
	AuthConfig    AuthHandlerConfig

	// ユーザー
	UserService UserServiceInterface

	// タスク
	TaskService TaskServiceInterface

	// 運用
	MetricsHandler http.Handler
	HealthCheck    func(ctx context.Context) error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → BearerAuth → RateLimit
//
// トークン検証エンドポイント（/api/auth/verify）とOAuthフロー（/auth/*）は
// BearerAuthの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// 未定義パス・未定義メソッドも統一エラーフォーマットで返す
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "NOT_FOUND",
			Message:  "指定されたパスは存在しません。",
			Category: model.CategoryNotFound,
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, &model.APIError{
			Code:     "METHOD_NOT_ALLOWED",
			Message:  "このメソッドは許可されていません。",
			Category: model.CategoryValidation,
		})
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.OAuthRegistry, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	taskHandler := NewTaskHandler(deps.TaskService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewInternalError())
				return
			}
		}
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// トークン検証（JITプロビジョニングの唯一の入口）
	r.Post("/api/auth/verify", authHandler.VerifyToken)

	// OAuth Webフロー
	r.Route("/auth/{provider}", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit
	r.Group(func(r chi.Router) {
		r.Use(deps.BearerAuth.Middleware())
		r.Use(deps.RateLimiter.Middleware())

		// プロフィール
		r.Get("/api/user/profile", userHandler.GetProfile)

		// タスク管理
		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			r.Post("/", taskHandler.CreateTask)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Put("/", taskHandler.ReplaceTask)
				r.Patch("/", taskHandler.UpdateTask)
				r.Delete("/", taskHandler.DeleteTask)
			})
		})
	})

	return r
}
