package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	EventsDropped   prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the publisher collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aidreg_audit_queue_depth",
			Help: "Current number of events in the audit publisher queue",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidreg_audit_events_dropped_total",
			Help: "Total number of audit events dropped due to full buffer",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidreg_audit_persist_failures_total",
			Help: "Total number of audit event persistence failures",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aidreg_audit_persist_duration_seconds",
			Help:    "Time taken to persist an audit event to the store",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}
