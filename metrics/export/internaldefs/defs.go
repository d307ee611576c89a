package internaldefs

import (
	"github.com/lingoleap/webauth"
)

// CounterDef names one counter.
type CounterDef struct {
	ID   webauth.MetricID
	Name string
	Help string
}

// HistogramDef names one histogram.
type HistogramDef struct {
	ID   webauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: webauth.MetricLogin, Name: "webauth_login_total", Help: "Successful session logins."},
	{ID: webauth.MetricLoginFailure, Name: "webauth_login_failure_total", Help: "Logins rejected by validation or the token store."},
	{ID: webauth.MetricLogout, Name: "webauth_logout_total", Help: "Explicit logouts."},
	{ID: webauth.MetricForcedLogout, Name: "webauth_forced_logout_total", Help: "Logouts triggered by a 401 response."},
	{ID: webauth.MetricUnauthorizedSuppressed, Name: "webauth_unauthorized_suppressed_total", Help: "401 responses absorbed because the credential was already handled."},
	{ID: webauth.MetricUnauthorizedStale, Name: "webauth_unauthorized_stale_total", Help: "401 responses for a credential that had already been replaced."},
	{ID: webauth.MetricProfileUpdate, Name: "webauth_profile_update_total", Help: "Merged profile updates."},
	{ID: webauth.MetricProfileUpdateIgnored, Name: "webauth_profile_update_ignored_total", Help: "Profile updates ignored while signed out."},
	{ID: webauth.MetricHydrateAuthenticated, Name: "webauth_hydrate_authenticated_total", Help: "Hydrations that restored a session."},
	{ID: webauth.MetricHydrateAnonymous, Name: "webauth_hydrate_anonymous_total", Help: "Hydrations that found no usable session."},
	{ID: webauth.MetricHydrateDiscarded, Name: "webauth_hydrate_discarded_total", Help: "Stored tokens discarded at hydration because they had expired."},
	{ID: webauth.MetricStoreFailure, Name: "webauth_store_failure_total", Help: "Token store errors."},
	{ID: webauth.MetricRequest, Name: "webauth_http_requests_total", Help: "Requests sent to the platform API."},
	{ID: webauth.MetricRequestFailure, Name: "webauth_http_request_failures_total", Help: "Requests that failed before a response arrived."},
}

var HistogramDefs = []HistogramDef{
	{ID: webauth.MetricRequestLatency, Name: "webauth_http_request_duration_seconds", Help: "Platform API round-trip latency."},
}

// HistogramBounds are the upper bounds in seconds of all but the last
// (+Inf) bucket.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
