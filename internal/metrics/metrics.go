// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AuthCollector は認証メトリクス収集のインターフェース。
// ミドルウェアとユースケース層から利用する。
type AuthCollector interface {
	RecordAuthSuccess()
	RecordAuthFailure(reason string)
	RecordUserProvisioned()
	RecordVerifyLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authSuccess     prometheus.Counter
	authFail        *prometheus.CounterVec
	userProvisioned prometheus.Counter
	verifyLatency   prometheus.Histogram
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_auth_success_total",
			Help: "認証成功の合計数",
		}),
		authFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_auth_fail_total",
			Help: "認証失敗の理由別合計数",
		}, []string{"reason"}),
		userProvisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_user_provisioned_total",
			Help: "JITプロビジョニングで作成されたユーザーの合計数",
		}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskboard_token_verify_latency_seconds",
			Help:    "トークン検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authSuccess,
		c.authFail,
		c.userProvisioned,
		c.verifyLatency,
		c.httpStatus,
	)

	return c
}

// RecordAuthSuccess は認証成功を記録する。
func (c *Collector) RecordAuthSuccess() {
	c.authSuccess.Inc()
}

// RecordAuthFailure は認証失敗を理由付きで記録する。
// reasonはミドルウェアの拒否理由（missing_or_malformed, jwt_invalid等）。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFail.WithLabelValues(reason).Inc()
}

// RecordUserProvisioned はJITプロビジョニングによるユーザー作成を記録する。
func (c *Collector) RecordUserProvisioned() {
	c.userProvisioned.Inc()
}

// RecordVerifyLatency はトークン検証のレイテンシを記録する。
func (c *Collector) RecordVerifyLatency(duration time.Duration) {
	c.verifyLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないAuthCollector。メトリクス無効時とテストで使用する。
type NopCollector struct{}

func (NopCollector) RecordAuthSuccess()                {}
func (NopCollector) RecordAuthFailure(string)          {}
func (NopCollector) RecordUserProvisioned()            {}
func (NopCollector) RecordVerifyLatency(time.Duration) {}
func (NopCollector) RecordHTTPStatus(int)              {}

// compile-time interface checks
var _ AuthCollector = (*Collector)(nil)
var _ AuthCollector = NopCollector{}
