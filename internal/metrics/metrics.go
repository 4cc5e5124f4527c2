// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期オーケストレータやマーカーサービスから利用する。
type MetricsCollector interface {
	RecordSyncSuccess(kind string, items int)
	RecordSyncFailure(kind string, reason string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordRecordsSkipped(count int)
	RecordMarkersServed(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess    *prometheus.CounterVec
	syncFail       *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	cachedItems    prometheus.Gauge
	recordsSkipped prometheus.Counter
	markersServed  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobmapper_sync_success_total",
			Help: "データセット同期成功の合計数",
		}, []string{"kind"}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobmapper_sync_fail_total",
			Help: "データセット同期失敗の合計数",
		}, []string{"kind", "reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobmapper_upstream_http_status_total",
			Help: "データセットAPIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobmapper_fetch_latency_seconds",
			Help:    "データセット取得のレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}),
		cachedItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobmapper_cached_items",
			Help: "直近の同期でキャッシュしたレコード数",
		}),
		recordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobmapper_records_skipped_total",
			Help: "デコードできずに読み飛ばしたレコードの合計数",
		}),
		markersServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobmapper_markers_served_total",
			Help: "返却したマーカーの合計数",
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.httpStatus,
		c.fetchLatency,
		c.cachedItems,
		c.recordsSkipped,
		c.markersServed,
	)

	return c
}

// RecordSyncSuccess は同期成功を記録し、キャッシュ件数を更新する。
func (c *Collector) RecordSyncSuccess(kind string, items int) {
	c.syncSuccess.WithLabelValues(kind).Inc()
	c.cachedItems.Set(float64(items))
}

// RecordSyncFailure は同期失敗を記録する。
func (c *Collector) RecordSyncFailure(kind string, reason string) {
	c.syncFail.WithLabelValues(kind, reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency は取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordRecordsSkipped は読み飛ばしたレコード数を記録する。
func (c *Collector) RecordRecordsSkipped(count int) {
	c.recordsSkipped.Add(float64(count))
}

// RecordMarkersServed は返却したマーカー数を記録する。
func (c *Collector) RecordMarkersServed(count int) {
	c.markersServed.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わないCLIやテストで利用する。
type Nop struct{}

func (Nop) RecordSyncSuccess(string, int) {}
func (Nop) RecordSyncFailure(string, string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) RecordRecordsSkipped(int) {}
func (Nop) RecordMarkersServed(int) {}
