// Package metrics provides Prometheus metrics collection for label audits.
// It defines the audit, detector and server metrics exposed via the
// Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for label auditing.
type Metrics struct {
	// Audit metrics
	AuditsTotal    prometheus.Counter   // Total number of successful label error searches
	AuditFailures  prometheus.Counter   // Total number of failed label error searches
	RecordsDropped prometheus.Counter   // Records skipped for lacking prediction or annotation
	LabelErrors    prometheus.Histogram // Number of label errors found per search

	// Detector metrics
	DetectorLatency prometheus.Histogram // Noise detection latency in seconds

	// Server metrics
	ServerRequests prometheus.Counter // Total number of noise detection requests served
	ServerErrors   prometheus.Counter // Total number of rejected or failed requests
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		AuditsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "label_audits_total",
			Help: "Total number of successful label error searches",
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "label_audit_failures_total",
			Help: "Total number of failed label error searches",
		}),
		RecordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "label_audit_records_dropped_total",
			Help: "Records skipped for lacking a prediction or an annotation",
		}),
		LabelErrors: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "label_errors_found",
			Help:    "Number of potential label errors found per search",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		DetectorLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "noise_detector_latency_seconds",
			Help:    "Noise detection latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		ServerRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "noise_server_requests_total",
			Help: "Total number of noise detection requests served",
		}),
		ServerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "noise_server_errors_total",
			Help: "Total number of noise detection requests rejected or failed",
		}),
	}
}

// FailureRate returns failed searches over all searches, or 0 before the
// first one.
func (m *Metrics) FailureRate() float64 {
	ok := counterValue(m.AuditsTotal)
	failed := counterValue(m.AuditFailures)
	if ok+failed == 0 {
		return 0
	}
	return failed / (ok + failed)
}
