package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/lingoleap/webauth"
	"github.com/lingoleap/webauth/store"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot webauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() webauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := webauth.MetricsSnapshot{
		Counters:      make(map[webauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms:    make(map[webauth.MetricID][]uint64, len(f.snapshot.Histograms)),
		HistogramSums: make(map[webauth.MetricID]float64, len(f.snapshot.HistogramSums)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	for k, v := range f.snapshot.HistogramSums {
		out.HistogramSums[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func int64Value(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	switch d := data.(type) {
	case metricdata.Sum[int64]:
		return d.DataPoints[0].Value
	case metricdata.Gauge[int64]:
		return d.DataPoints[0].Value
	default:
		t.Fatalf("unexpected aggregation %T", data)
		return 0
	}
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: webauth.MetricsSnapshot{
			Counters: map[webauth.MetricID]uint64{
				webauth.MetricForcedLogout: 3,
			},
			Histograms: map[webauth.MetricID][]uint64{
				webauth.MetricRequestLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			HistogramSums: map[webauth.MetricID]float64{
				webauth.MetricRequestLatency: 0.75,
			},
		},
		dropped: 1,
	}

	exp, err := NewExporter(provider.Meter("webauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	if v := int64Value(t, got["webauth_forced_logout_total"]); v != 3 {
		t.Fatalf("forced logout = %d, want 3", v)
	}
	if v := int64Value(t, got["webauth_http_request_duration_seconds_bucket_le_inf"]); v != 8 {
		t.Fatalf("+Inf bucket = %d, want 8", v)
	}
	if v := int64Value(t, got["webauth_audit_dropped_total"]); v != 1 {
		t.Fatalf("audit dropped = %d, want 1", v)
	}
	sum, ok := got["webauth_http_request_duration_seconds_sum"].(metricdata.Gauge[float64])
	if !ok || sum.DataPoints[0].Value != 0.75 {
		t.Fatalf("unexpected sum %#v", got["webauth_http_request_duration_seconds_sum"])
	}
}

func TestExporterReadsLiveSession(t *testing.T) {
	reader, provider := newReader()
	sess, err := webauth.New().WithStore(store.NewMemoryStore(nil)).WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer sess.Close()

	exp, err := NewExporter(provider.Meter("webauth-test"), sess)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	ctx := context.Background()
	if err := sess.Login(ctx, "tok", webauth.UserProfile{ID: "u1", Role: webauth.RoleStudent}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if v := int64Value(t, collect(t, reader)["webauth_login_total"]); v != 1 {
		t.Fatalf("login total = %d, want 1", v)
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader()
	if _, err := NewExporter(provider.Meter("webauth-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader()

	src := &fakeSource{
		snapshot: webauth.MetricsSnapshot{
			Counters: map[webauth.MetricID]uint64{
				webauth.MetricLogin: 1,
			},
			Histograms: map[webauth.MetricID][]uint64{
				webauth.MetricRequestLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporter(provider.Meter("webauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[webauth.MetricLogin] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
