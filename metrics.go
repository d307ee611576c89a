package webauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in the in-process metrics.
type MetricID uint16

const (
	// MetricLogin counts successful Login calls.
	MetricLogin MetricID = iota
	// MetricLoginFailure counts Login calls rejected by validation or the store.
	MetricLoginFailure
	// MetricLogout counts explicit Logout calls.
	MetricLogout
	// MetricForcedLogout counts logouts caused by a 401.
	MetricForcedLogout
	// MetricUnauthorizedSuppressed counts 401s absorbed by the once-per-epoch guard.
	MetricUnauthorizedSuppressed
	// MetricUnauthorizedStale counts 401s for a credential older than the current one.
	MetricUnauthorizedStale
	// MetricProfileUpdate counts merged profile updates.
	MetricProfileUpdate
	// MetricProfileUpdateIgnored counts UpdateUser calls made while not authenticated.
	MetricProfileUpdateIgnored
	// MetricHydrateAuthenticated counts hydrations that restored a session.
	MetricHydrateAuthenticated
	// MetricHydrateAnonymous counts hydrations that found nothing usable.
	MetricHydrateAnonymous
	// MetricHydrateDiscarded counts restored tokens dropped for being expired.
	MetricHydrateDiscarded
	// MetricStoreFailure counts token store errors.
	MetricStoreFailure
	// MetricRequest counts requests sent by the client.
	MetricRequest
	// MetricRequestFailure counts transport failures.
	MetricRequestFailure
	// MetricRequestLatency is the client round-trip latency histogram.
	MetricRequestLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
	sumNs   uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free session and client counters.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics. HistogramSums holds
// the sum of observed durations in seconds.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]float64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricRequestLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricRequestLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
	if d > 0 {
		atomic.AddUint64(&m.histograms[id].sumNs, uint64(d))
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]float64{},
		}
	}

	s := MetricsSnapshot{
		Counters:      make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 1),
		HistogramSums: make(map[MetricID]float64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRequestLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		h := &m.histograms[MetricRequestLatency]
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&h.buckets[i])
		}
		s.Histograms[MetricRequestLatency] = buckets
		s.HistogramSums[MetricRequestLatency] = time.Duration(atomic.LoadUint64(&h.sumNs)).Seconds()
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
