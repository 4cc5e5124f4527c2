package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if c := NewCollector(prometheus.NewRegistry()); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordSyncSuccess_CountsByKindAndSetsGauge は同期成功が種別ごとに数えられ、件数ゲージが更新されることを検証する。
func TestRecordSyncSuccess_CountsByKindAndSetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncSuccess("manual", 10)
	c.RecordSyncSuccess("manual", 20)
	c.RecordSyncSuccess("scheduled", 5)

	mf := gather(t, reg, "jobmapper_sync_success_total")
	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		counts[labelValue(m, "kind")] = m.GetCounter().GetValue()
	}
	if counts["manual"] != 2 || counts["scheduled"] != 1 {
		t.Errorf("sync_success_total = %v, want manual=2 scheduled=1", counts)
	}

	gauge := gather(t, reg, "jobmapper_cached_items").GetMetric()[0].GetGauge().GetValue()
	if gauge != 5 {
		t.Errorf("cached_items = %v, want 5", gauge)
	}
}

// TestRecordSyncFailure_IncrementsCounterWithReason は同期失敗が理由ラベル付きで数えられることを検証する。
func TestRecordSyncFailure_IncrementsCounterWithReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncFailure("scheduled", "not_found")

	m := gather(t, reg, "jobmapper_sync_fail_total").GetMetric()[0]
	if labelValue(m, "reason") != "not_found" || m.GetCounter().GetValue() != 1 {
		t.Errorf("sync_fail_total = %v", m)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	counts := map[string]float64{}
	for _, m := range gather(t, reg, "jobmapper_upstream_http_status_total").GetMetric() {
		counts[labelValue(m, "status_code")] = m.GetCounter().GetValue()
	}
	if counts["200"] != 2 || counts["404"] != 1 {
		t.Errorf("http_status_total = %v", counts)
	}
}

// TestRecordFetchLatency_ObservesHistogram は取得レイテンシがヒストグラムに記録されることを検証する。
func TestRecordFetchLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchLatency(1500 * time.Millisecond)

	h := gather(t, reg, "jobmapper_fetch_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample_count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() != 1.5 {
		t.Errorf("sample_sum = %v, want 1.5", h.GetSampleSum())
	}
}

// TestRecordCounters は読み飛ばし件数とマーカー返却数が加算されることを検証する。
func TestRecordCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRecordsSkipped(3)
	c.RecordMarkersServed(7)
	c.RecordMarkersServed(1)

	if v := gather(t, reg, "jobmapper_records_skipped_total").GetMetric()[0].GetCounter().GetValue(); v != 3 {
		t.Errorf("records_skipped_total = %v, want 3", v)
	}
	if v := gather(t, reg, "jobmapper_markers_served_total").GetMetric()[0].GetCounter().GetValue(); v != 8 {
		t.Errorf("markers_served_total = %v, want 8", v)
	}
}

// TestNop_ImplementsCollector はNopがMetricsCollectorを満たすことを検証する。
func TestNop_ImplementsCollector(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordSyncSuccess("manual", 1)
	c.RecordMarkersServed(1)
}
