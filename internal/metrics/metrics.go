// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordReminderSent()
	RecordReminderSkipped(reason string)
	RecordOrderViolation()
	RecordEnvelopeTransition(to string)
	RecordConcurrencyConflict()
	RecordWebhookLatency(duration time.Duration)
	RecordWebhookFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	remindersSent       prometheus.Counter
	remindersSkipped    *prometheus.CounterVec
	orderViolations     prometheus.Counter
	envelopeTransitions *prometheus.CounterVec
	conflicts           prometheus.Counter
	webhookLatency      prometheus.Histogram
	webhookFailures     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shomei_reminders_sent_total",
			Help: "送信されたリマインダーの合計数",
		}),
		remindersSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shomei_reminders_skipped_total",
			Help: "スキップされたリマインダーの理由別合計数",
		}, []string{"reason"}),
		orderViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shomei_signing_order_violations_total",
			Help: "署名順序違反の合計数",
		}),
		envelopeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shomei_envelope_transitions_total",
			Help: "エンベロープ状態遷移の遷移先別合計数",
		}, []string{"to"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shomei_concurrency_conflicts_total",
			Help: "条件付き書き込みの競合の合計数",
		}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shomei_webhook_latency_seconds",
			Help:    "Webhook配信のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		webhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shomei_webhook_failures_total",
			Help: "Webhook配信失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.remindersSent,
		c.remindersSkipped,
		c.orderViolations,
		c.envelopeTransitions,
		c.conflicts,
		c.webhookLatency,
		c.webhookFailures,
	)

	return c
}

// RecordReminderSent はリマインダー送信を記録する。
func (c *Collector) RecordReminderSent() {
	c.remindersSent.Inc()
}

// RecordReminderSkipped はリマインダーのスキップを理由別に記録する。
func (c *Collector) RecordReminderSkipped(reason string) {
	c.remindersSkipped.WithLabelValues(reason).Inc()
}

// RecordOrderViolation は署名順序違反を記録する。
func (c *Collector) RecordOrderViolation() {
	c.orderViolations.Inc()
}

// RecordEnvelopeTransition はエンベロープ状態遷移を遷移先別に記録する。
func (c *Collector) RecordEnvelopeTransition(to string) {
	c.envelopeTransitions.WithLabelValues(to).Inc()
}

// RecordConcurrencyConflict は条件付き書き込みの競合を記録する。
func (c *Collector) RecordConcurrencyConflict() {
	c.conflicts.Inc()
}

// RecordWebhookLatency はWebhook配信のレイテンシを記録する。
func (c *Collector) RecordWebhookLatency(duration time.Duration) {
	c.webhookLatency.Observe(duration.Seconds())
}

// RecordWebhookFailure はWebhook配信失敗を記録する。
func (c *Collector) RecordWebhookFailure() {
	c.webhookFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
