// Package otel publishes session and client metrics through an
// OpenTelemetry meter using observable instruments.
//
// Histograms are flattened into one gauge per cumulative bucket plus _count
// and _sum gauges, matching the Prometheus exporter's bucket bounds.
package otel
