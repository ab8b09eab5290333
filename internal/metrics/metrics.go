// Package metrics provides Prometheus metrics for pawwatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "pawwatch"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// HTTPRequestsInFlight is the number of requests being served.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)
)

// Sweep metrics
var (
	// SweepsTotal counts batch sweeps by outcome.
	SweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Total batch sweeps",
		},
		[]string{"result"}, // success, partial, failed
	)

	// SweepDuration tracks the wall time of a sweep.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Batch sweep duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// SubjectsEvaluated counts evaluated subjects by outcome.
	SubjectsEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "subjects_evaluated_total",
			Help:      "Total subjects evaluated",
		},
		[]string{"result"}, // ok, error, skipped
	)
)

// Detection metrics
var (
	// FindingsTotal counts anomalous findings.
	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "findings_total",
			Help:      "Total anomalous findings produced",
		},
		[]string{"type", "severity"},
	)

	// DetectionDuration tracks window fetch plus analysis latency per subject.
	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "duration_seconds",
			Help:      "Anomaly detection latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

// Alerting metrics
var (
	// TriggersTotal counts fired rule triggers.
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "triggers_total",
			Help:      "Total rule triggers fired",
		},
		[]string{"type"},
	)

	// TriggerConflicts counts triggers lost to a concurrent evaluation.
	TriggerConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "trigger_conflicts_total",
			Help:      "Total trigger claims rejected because the rule already fired",
		},
	)

	// DeliveriesTotal counts notification deliveries by channel and outcome.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "deliveries_total",
			Help:      "Total notification deliveries",
		},
		[]string{"channel", "result"}, // success, failure, rate_limited
	)
)

// Storage metrics
var (
	// StorageQueryDuration tracks query latency.
	StorageQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Storage query latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "backend"},
	)

	// StorageErrors counts storage operation errors.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total storage operation errors",
		},
		[]string{"operation", "backend"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
