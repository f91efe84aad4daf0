// Package metrics defines the Prometheus metrics exported by hookrelay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay outcomes used as the outcome label.
const (
	OutcomeSuccess        = "success"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeTransportError = "transport_error"
)

// Metrics holds all Prometheus metrics, grouped by path.
type Metrics struct {
	Capture CaptureMetrics
	Relay   RelayMetrics
	API     APIMetrics
}

// CaptureMetrics tracks inbound webhook captures.
type CaptureMetrics struct {
	// Requests counts captured requests by whether they were relayed.
	Requests *prometheus.CounterVec // labels: relayed (true/false)

	// StoreFailures counts captures that could not be persisted.
	StoreFailures prometheus.Counter

	// BodyBytes tracks captured body sizes.
	BodyBytes prometheus.Histogram
}

// RelayMetrics tracks forwarding to upstreams.
type RelayMetrics struct {
	// Attempts counts relay attempts per outcome.
	Attempts *prometheus.CounterVec // labels: outcome

	// Duration tracks upstream round-trip time.
	Duration prometheus.Histogram

	// InFlight is the number of attempts currently holding a gate slot.
	InFlight prometheus.Gauge

	// SnapshotFailures counts request/response snapshots that failed to persist.
	SnapshotFailures prometheus.Counter
}

// APIMetrics tracks the read API.
type APIMetrics struct {
	// RowsServed counts rows returned by list endpoints, header rows included.
	RowsServed prometheus.Counter

	// Deleted counts records removed through the purge endpoint.
	Deleted prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on reg. Tests pass a fresh registry to
// avoid duplicate registration.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Capture: CaptureMetrics{
			Requests: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hookrelay_capture_requests_total",
					Help: "Total number of captured inbound requests",
				},
				[]string{"relayed"},
			),
			StoreFailures: factory.NewCounter(
				prometheus.CounterOpts{
					Name: "hookrelay_capture_store_failures_total",
					Help: "Total number of inbound requests that could not be stored",
				},
			),
			BodyBytes: factory.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "hookrelay_capture_body_bytes",
					Help:    "Size of captured request bodies",
					Buckets: prometheus.ExponentialBuckets(64, 4, 8), // 64B to 1MiB
				},
			),
		},
		Relay: RelayMetrics{
			Attempts: factory.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hookrelay_relay_attempts_total",
					Help: "Total number of relay attempts by outcome",
				},
				[]string{"outcome"},
			),
			Duration: factory.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "hookrelay_relay_duration_seconds",
					Help:    "Upstream round-trip time of relay attempts",
					Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
				},
			),
			InFlight: factory.NewGauge(
				prometheus.GaugeOpts{
					Name: "hookrelay_relay_in_flight",
					Help: "Number of relay attempts currently holding a gate slot",
				},
			),
			SnapshotFailures: factory.NewCounter(
				prometheus.CounterOpts{
					Name: "hookrelay_relay_snapshot_failures_total",
					Help: "Total number of relay snapshots that could not be stored",
				},
			),
		},
		API: APIMetrics{
			RowsServed: factory.NewCounter(
				prometheus.CounterOpts{
					Name: "hookrelay_api_rows_served_total",
					Help: "Total number of rows returned by list endpoints",
				},
			),
			Deleted: factory.NewCounter(
				prometheus.CounterOpts{
					Name: "hookrelay_api_deleted_records_total",
					Help: "Total number of records removed through the API",
				},
			),
		},
	}
}
