package request

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level collectors shared by the request middleware.
type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
}

// NewMetrics registers the request collectors on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers the request collectors on reg so tests can
// use an isolated registry.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aidreg_http_endpoint_latency_seconds",
			Help:    "Latency of HTTP endpoints in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}
