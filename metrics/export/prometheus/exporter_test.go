package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lingoleap/webauth"
	"github.com/lingoleap/webauth/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot webauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() webauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestCollectorOnlyAuditWhenMetricsDisabled(t *testing.T) {
	c := NewCollector(fakeSource{snapshot: webauth.MetricsSnapshot{
		Counters:   map[webauth.MetricID]uint64{},
		Histograms: map[webauth.MetricID][]uint64{},
	}})
	if got := testutil.CollectAndCount(c); got != 1 {
		t.Fatalf("expected only the audit counter, got %d series", got)
	}
}

func TestCollectorCountersAndHistogram(t *testing.T) {
	c := NewCollector(fakeSource{
		snapshot: webauth.MetricsSnapshot{
			Counters: map[webauth.MetricID]uint64{
				webauth.MetricForcedLogout:           1,
				webauth.MetricUnauthorizedSuppressed: 19,
			},
			Histograms: map[webauth.MetricID][]uint64{
				webauth.MetricRequestLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			HistogramSums: map[webauth.MetricID]float64{
				webauth.MetricRequestLatency: 12.5,
			},
		},
		dropped: 2,
	})

	expected := `
# HELP webauth_forced_logout_total Logouts triggered by a 401 response.
# TYPE webauth_forced_logout_total counter
webauth_forced_logout_total 1
# HELP webauth_unauthorized_suppressed_total 401 responses absorbed because the credential was already handled.
# TYPE webauth_unauthorized_suppressed_total counter
webauth_unauthorized_suppressed_total 19
# HELP webauth_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE webauth_audit_dropped_total counter
webauth_audit_dropped_total 2
# HELP webauth_http_request_duration_seconds Platform API round-trip latency.
# TYPE webauth_http_request_duration_seconds histogram
webauth_http_request_duration_seconds_bucket{le="0.005"} 1
webauth_http_request_duration_seconds_bucket{le="0.01"} 3
webauth_http_request_duration_seconds_bucket{le="0.025"} 6
webauth_http_request_duration_seconds_bucket{le="0.05"} 10
webauth_http_request_duration_seconds_bucket{le="0.1"} 15
webauth_http_request_duration_seconds_bucket{le="0.25"} 21
webauth_http_request_duration_seconds_bucket{le="0.5"} 28
webauth_http_request_duration_seconds_bucket{le="+Inf"} 36
webauth_http_request_duration_seconds_sum 12.5
webauth_http_request_duration_seconds_count 36
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"webauth_forced_logout_total",
		"webauth_unauthorized_suppressed_total",
		"webauth_audit_dropped_total",
		"webauth_http_request_duration_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}
}

func TestHandlerServesLiveSession(t *testing.T) {
	sess, err := webauth.New().WithStore(store.NewMemoryStore(nil)).WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer sess.Close()
	if err := sess.Logout(t.Context()); err != nil {
		t.Fatalf("logout: %v", err)
	}

	h, err := Handler(sess)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "webauth_logout_total 1") {
		t.Fatalf("expected logout counter, got:\n%s", body)
	}
}
