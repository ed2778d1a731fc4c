// Package metrics provides Prometheus metrics for the research proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes.
const (
	OutcomeRelayed       = "relayed"
	OutcomeInvalid       = "invalid"
	OutcomeMisconfigured = "misconfigured"
	OutcomeUpstreamError = "upstream_error"
	OutcomeClientGone    = "client_gone"
	OutcomeInternalError = "internal_error"
)

var (
	// RequestsTotal counts research requests by outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deepresearch",
			Name:      "requests_total",
			Help:      "Total number of deep research requests",
		},
		[]string{"outcome"},
	)

	// RelayedLinesTotal counts upstream lines forwarded to clients.
	RelayedLinesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deepresearch",
			Name:      "relayed_lines_total",
			Help:      "Total number of upstream lines relayed to clients",
		},
	)

	// UpstreamErrorsTotal counts upstream failures by kind.
	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deepresearch",
			Name:      "upstream_errors_total",
			Help:      "Total number of upstream failures",
		},
		[]string{"kind"},
	)

	// StreamDuration measures how long a relayed stream stays open.
	StreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "deepresearch",
			Name:      "stream_duration_seconds",
			Help:      "Duration of relayed upstream streams in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
	)
)

// RecordRequest records the outcome of one research request.
func RecordRequest(outcome string) {
	RequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordStream records a finished relay.
func RecordStream(lines int, seconds float64) {
	RelayedLinesTotal.Add(float64(lines))
	StreamDuration.Observe(seconds)
}

// RecordUpstreamError records an upstream failure.
func RecordUpstreamError(kind string) {
	UpstreamErrorsTotal.WithLabelValues(kind).Inc()
}
