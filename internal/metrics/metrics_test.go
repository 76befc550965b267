package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily は収集済みメトリクスから名前でファミリーを取得する。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
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

// counterByLabel はラベル値ごとのカウンタ値を返す。
func counterByLabel(mf *dto.MetricFamily) map[string]float64 {
	values := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		values[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	return values
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// 同じレジストリに二重登録するとpanicする。
func TestNewCollector_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}

func TestRecordTransactionCreated_CountsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransactionCreated("income")
	c.RecordTransactionCreated("expense")
	c.RecordTransactionCreated("expense")

	values := counterByLabel(findMetricFamily(t, reg, "kakeibo_transactions_created_total"))
	if values["income"] != 1 {
		t.Errorf("created{kind=income} = %v, want 1", values["income"])
	}
	if values["expense"] != 2 {
		t.Errorf("created{kind=expense} = %v, want 2", values["expense"])
	}
}

func TestRecordTransactionDeleted_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransactionDeleted()

	mf := findMetricFamily(t, reg, "kakeibo_transactions_deleted_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("deleted_total = %v, want 1", val)
	}
}

func TestRecordValidationFailure_CountsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordValidationFailure("INVALID_AMOUNT")
	c.RecordValidationFailure("INVALID_AMOUNT")
	c.RecordValidationFailure("INVALID_PERIOD")

	values := counterByLabel(findMetricFamily(t, reg, "kakeibo_validation_failures_total"))
	if values["INVALID_AMOUNT"] != 2 || values["INVALID_PERIOD"] != 1 {
		t.Errorf("validation_failures_total = %v", values)
	}
}

func TestRecordLogin_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(LoginSuccess)
	c.RecordLogin(LoginConflict)
	c.RecordIdentityRaceRetry()

	values := counterByLabel(findMetricFamily(t, reg, "kakeibo_logins_total"))
	if values[LoginSuccess] != 1 || values[LoginConflict] != 1 {
		t.Errorf("logins_total = %v", values)
	}

	mf := findMetricFamily(t, reg, "kakeibo_identity_race_retries_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("identity_race_retries_total = %v, want 1", val)
	}
}

func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	values := counterByLabel(findMetricFamily(t, reg, "kakeibo_http_status_total"))
	if len(values) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(values))
	}
	if values["200"] != 2 || values["404"] != 1 {
		t.Errorf("http_status_total = %v", values)
	}
}

func TestRecordListLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordListLatency(100 * time.Millisecond)
	c.RecordListLatency(2 * time.Second)

	h := findMetricFamily(t, reg, "kakeibo_list_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

func TestRecordSessionsPurged_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsPurged(3)
	c.RecordSessionsPurged(0)

	mf := findMetricFamily(t, reg, "kakeibo_sessions_purged_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 3 {
		t.Errorf("sessions_purged_total = %v, want 3", val)
	}
}
