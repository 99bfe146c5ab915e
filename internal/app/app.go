// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/config"
	"github.com/hitoshi/taskboard/internal/database"
	"github.com/hitoshi/taskboard/internal/directory"
	"github.com/hitoshi/taskboard/internal/handler"
	"github.com/hitoshi/taskboard/internal/logger"
	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/rls"
	"github.com/hitoshi/taskboard/internal/security"
	"github.com/hitoshi/taskboard/internal/task"
	"github.com/hitoshi/taskboard/internal/token"
	"github.com/hitoshi/taskboard/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newVerifier は設定からトークン検証器を選択する。
// JWKS_URLが設定されていればJWKS署名検証、JWT_SECRETのみなら共有鍵（HS256）検証、
// どちらも未設定の場合は全トークンを拒否するフェイルクローズ実装を返す。
func newVerifier(ctx context.Context, cfg *config.Config) token.Verifier {
	switch {
	case cfg.JWKSURL != "":
		slog.Info("token verification via JWKS", slog.String("jwks_url", cfg.JWKSURL))
		return token.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWKSFetchTimeout)
	case cfg.JWTSecret != "":
		slog.Info("token verification via shared secret (HS256)")
		return token.NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	default:
		slog.Warn("no token verification configured; all tokens will be rejected")
		return token.NoopVerifier{}
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスの初期化
	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)

	// 4. トークン検証とユーザー解決の初期化
	verifier := newVerifier(context.Background(), cfg)
	dir := directory.NewDirectory(userRepo, collector)
	rlsSetter := rls.NewSetter(db)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(verifier, dir)
	userService := user.NewService(userRepo)
	taskService := task.NewService(taskRepo, security.NewTextSanitizer())

	// 6. OAuth Webフローのプロバイダー登録
	registry := auth.NewRegistry()
	if cfg.GoogleClientID != "" {
		registry.Register(model.ProviderGoogle, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	}

	// 7. 認証ミドルウェアとレート制限の初期化
	bearerAuth := middleware.NewBearerAuth(verifier, dir, rlsSetter, collector)

	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.Rate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.Burst = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 8. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Collector:         collector,
		BearerAuth:        bearerAuth,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,

		AuthService:   authService,
		OAuthRegistry: registry,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:        cfg.BaseURL,
			CookieDomain:   cfg.CookieDomain,
			CookieSecure:   cfg.CookieSecure,
			TokenMaxLength: cfg.TokenMaxLength,
		},

		UserService: userService,
		TaskService: taskService,

		MetricsHandler: metrics.Handler(promReg),
		HealthCheck:    db.PingContext,
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// シェルを持たないコンテナ環境からも実行できるよう、サブコマンドとして提供する。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
