// Package prometheus exposes session and client metrics as a Prometheus
// collector.
//
//	registry.MustRegister(prometheus.NewCollector(sess))
//
// or, for a standalone /metrics endpoint:
//
//	h, err := prometheus.Handler(sess)
//
// Series are skipped while metrics are disabled on the session, except the
// audit drop counter.
package prometheus
