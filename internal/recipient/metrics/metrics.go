package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the recipient registry.
// Tracks mutation counts, rejections by result code, and operation durations.
type Metrics struct {
	RecipientsRegistered prometheus.Counter
	RecipientsVerified   prometheus.Counter
	AdminTransfers       prometheus.Counter
	Rejections           *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
}

// New registers the registry metrics on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the registry metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecipientsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidreg_recipients_registered_total",
			Help: "Total number of recipients registered",
		}),
		RecipientsVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidreg_recipients_verified_total",
			Help: "Total number of successful verify calls",
		}),
		AdminTransfers: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidreg_admin_transfers_total",
			Help: "Total number of admin transfers",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidreg_registry_rejections_total",
			Help: "Registry calls rejected with a result code",
		}, []string{"operation", "code"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aidreg_registry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementRegistered() {
	m.RecipientsRegistered.Inc()
}

func (m *Metrics) IncrementVerified() {
	m.RecipientsVerified.Inc()
}

func (m *Metrics) IncrementAdminTransfers() {
	m.AdminTransfers.Inc()
}

// IncrementRejection records a call that ended with a numeric result code.
func (m *Metrics) IncrementRejection(operation string, code int) {
	m.Rejections.WithLabelValues(operation, codeLabel(code)).Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func codeLabel(code int) string {
	switch code {
	case 100:
		return "duplicate_id"
	case 403:
		return "unauthorized"
	case 404:
		return "not_found"
	default:
		return "other"
	}
}
