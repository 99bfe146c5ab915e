package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/rls"
	"github.com/hitoshi/taskboard/internal/token"
)

const bearerPrefix = "Bearer "

// 認証拒否の理由。メトリクスとログにのみ使用し、クライアントへの
// レスポンスには反映しない（クライアントに返るのは一般的な401のみ）。
const (
	reasonMissingOrMalformed  = "missing_or_malformed"
	reasonJWTInvalid          = "jwt_invalid"
	reasonUnsupportedProvider = "unsupported_provider"
	reasonUserNotFound        = "user_not_found"
	reasonInfrastructure      = "infrastructure"
)

// UserResolver は認証ミドルウェアが必要とするユーザー解決インターフェース。
// directory.Directoryの部分集合として定義する。ミドルウェア経由の認証では
// JITプロビジョニングは行わない（作成は/api/auth/verifyのユースケースのみ）。
type UserResolver interface {
	Resolve(ctx context.Context, provider model.Provider, externalID string) (*model.User, error)
}

// RLSScoper はRLSスコープ付きトランザクションの開始インターフェース。
// rls.Setterの部分集合として定義する。
type RLSScoper interface {
	BeginScoped(ctx context.Context, userID string) (rls.Tx, error)
}

// BearerAuth はベアラートークン認証ミドルウェア。
//
// リクエストごとに次の手順を順次実行する（各段階は前段の成功に依存し、
// 並列化しない）:
//
//	ヘッダー抽出 → トークン検証 → provider確認 → ユーザー解決 →
//	RLSスコープ付きトランザクション開始 → コンテキスト注入 → 次ハンドラー
//
// ユーザー解決のDBアクセスは1回、RLS設定は1文のみ。途中で失敗した場合は
// 後続ハンドラーを呼ばずに応答を返し、リクエストをまたいで状態は持たない。
type BearerAuth struct {
	verifier  token.Verifier
	resolver  UserResolver
	scoper    RLSScoper
	collector metrics.AuthCollector
}

// NewBearerAuth はBearerAuthを生成する。collectorがnilの場合は記録しない。
func NewBearerAuth(verifier token.Verifier, resolver UserResolver, scoper RLSScoper, collector metrics.AuthCollector) *BearerAuth {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &BearerAuth{
		verifier:  verifier,
		resolver:  resolver,
		scoper:    scoper,
		collector: collector,
	}
}

// Middleware は認証ミドルウェアを返す。
func (m *BearerAuth) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーの抽出。
			// どの段階で弾かれたかを探られないよう、欠落・不正形式・空トークンは
			// いずれも同一の一般的な401で応答する。
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				m.reject(w, reasonMissingOrMalformed, nil)
				return
			}
			rawToken := strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
			if rawToken == "" {
				m.reject(w, reasonMissingOrMalformed, nil)
				return
			}

			// 2. トークン検証。リモート鍵取得のタイムアウトを含む全検証エラーは
			// 認証失敗として扱う（遅いIdPを使った内部状態の探索を許さない）。
			start := time.Now()
			claims, err := m.verifier.Verify(r.Context(), rawToken)
			m.collector.RecordVerifyLatency(time.Since(start))
			if err != nil {
				m.reject(w, reasonJWTInvalid, err)
				return
			}
			if claims == nil || claims.Subject == "" {
				m.reject(w, reasonJWTInvalid, nil)
				return
			}

			// 3. provider確認。許可リスト外の場合はユーザー解決を行わずに拒否する。
			// provider名はサーバー設定またはクライアント実装の不具合シグナルのため
			// 例外的にレスポンスへ含める。
			provider := claims.Provider()
			if !provider.IsSupported() {
				m.collector.RecordAuthFailure(reasonUnsupportedProvider)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnsupportedProviderError(string(provider)))
				return
			}

			// 4. ユーザー解決（DBアクセスは1回）。見つからない場合は401。
			// このパスではJITプロビジョニングは行わない。
			user, err := m.resolver.Resolve(r.Context(), provider, claims.Subject)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) && apiErr.Category == model.CategoryAuth {
					m.collector.RecordAuthFailure(reasonUnsupportedProvider)
					WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
					return
				}
				m.fail(w, err)
				return
			}
			if user == nil {
				m.reject(w, reasonUserNotFound, nil)
				return
			}

			// 5. RLSスコープ付きトランザクションの開始。
			// ここでの失敗は認証失敗ではなくインフラ障害（500）。認証自体は
			// 成功しており、401を返すとクライアントが誤ってトークンを破棄する。
			tx, err := m.scoper.BeginScoped(r.Context(), user.ID)
			if err != nil {
				m.fail(w, err)
				return
			}

			// 6. コンテキストへ内部ユーザーID（外部subjectではない）とクレームを注入。
			ctx := rls.ContextWithTx(r.Context(), tx)
			ctx = ContextWithUserID(ctx, user.ID)
			ctx = ContextWithClaims(ctx, claims)

			m.collector.RecordAuthSuccess()

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			defer func() {
				if p := recover(); p != nil {
					tx.Rollback()
					panic(p)
				}
			}()

			next.ServeHTTP(rec, r.WithContext(ctx))

			// ハンドラー完了までトランザクションを保持し、サーバーエラー時のみ
			// ロールバックする。RLS設定はトランザクション境界を越えないため、
			// ここまでコミットを遅延させる。
			if rec.statusCode >= http.StatusInternalServerError {
				tx.Rollback()
				return
			}
			if err := tx.Commit(); err != nil {
				slog.Error("failed to commit request transaction", slog.String("error", err.Error()))
				if !rec.written {
					WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
				}
			}
		})
	}
}

// reject は認証失敗（401）として応答する。理由はメトリクスとログにのみ残し、
// クライアントには一般的なメッセージを返す。
func (m *BearerAuth) reject(w http.ResponseWriter, reason string, err error) {
	m.collector.RecordAuthFailure(reason)
	if err != nil {
		slog.Warn("authentication rejected",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Warn("authentication rejected", slog.String("reason", reason))
	}
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
}

// fail はインフラ障害（500）として応答する。詳細はログにのみ記録する。
func (m *BearerAuth) fail(w http.ResponseWriter, err error) {
	m.collector.RecordAuthFailure(reasonInfrastructure)
	slog.Error("authentication infrastructure failure", slog.String("error", err.Error()))
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
