// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess       = "success"
	LoginProviderError = "provider_error"
	LoginConflict      = "conflict"
	LoginError         = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、HTTPミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordTransactionCreated(kind string)
	RecordTransactionDeleted()
	RecordValidationFailure(code string)
	RecordListLatency(duration time.Duration)
	RecordLogin(result string)
	RecordIdentityRaceRetry()
	RecordHTTPStatus(statusCode int)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	txCreated       *prometheus.CounterVec
	txDeleted       prometheus.Counter
	validationFail  *prometheus.CounterVec
	listLatency     prometheus.Histogram
	logins          *prometheus.CounterVec
	identityRetries prometheus.Counter
	httpStatus      *prometheus.CounterVec
	sessionsPurged  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		txCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kakeibo_transactions_created_total",
			Help: "登録された取引の合計数（収支区分別）",
		}, []string{"kind"}),
		txDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kakeibo_transactions_deleted_total",
			Help: "削除された取引の合計数",
		}),
		validationFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kakeibo_validation_failures_total",
			Help: "入力検証エラーの合計数（エラーコード別）",
		}, []string{"code"}),
		listLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kakeibo_list_latency_seconds",
			Help:    "取引一覧取得と集計のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kakeibo_logins_total",
			Help: "ログイン試行の合計数（結果別）",
		}, []string{"result"}),
		identityRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kakeibo_identity_race_retries_total",
			Help: "同時ログインによるユーザー作成競合後の再検索回数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kakeibo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kakeibo_sessions_purged_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.txCreated,
		c.txDeleted,
		c.validationFail,
		c.listLatency,
		c.logins,
		c.identityRetries,
		c.httpStatus,
		c.sessionsPurged,
	)

	return c
}

// RecordTransactionCreated は取引の登録を記録する。
func (c *Collector) RecordTransactionCreated(kind string) {
	c.txCreated.WithLabelValues(kind).Inc()
}

// RecordTransactionDeleted は取引の削除を記録する。
func (c *Collector) RecordTransactionDeleted() {
	c.txDeleted.Inc()
}

// RecordValidationFailure は入力検証エラーを記録する。
func (c *Collector) RecordValidationFailure(code string) {
	c.validationFail.WithLabelValues(code).Inc()
}

// RecordListLatency は一覧取得のレイテンシを記録する。
func (c *Collector) RecordListLatency(duration time.Duration) {
	c.listLatency.Observe(duration.Seconds())
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordIdentityRaceRetry はユーザー作成競合後の再検索を記録する。
func (c *Collector) RecordIdentityRaceRetry() {
	c.identityRetries.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsPurged は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
