package service

import (
	"log/slog"

	"aidreg/internal/platform/clock"
	"aidreg/internal/platform/tracer"
	recipientmetrics "aidreg/internal/recipient/metrics"
)

// serviceConfig holds optional dependencies for the registry service.
type serviceConfig struct {
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *recipientmetrics.Metrics
	tracer         tracer.Tracer
	clock          clock.Clock
	tx             StoreTx
}

// Option configures a Service.
type Option func(c *serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *serviceConfig) {
		c.auditPublisher = publisher
	}
}

func WithMetrics(m *recipientmetrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *serviceConfig) {
		c.tracer = t
	}
}

// WithClock sets the logical clock that stamps lastVerified. Defaults to a
// fixed height of zero.
func WithClock(c clock.Clock) Option {
	return func(cfg *serviceConfig) {
		cfg.clock = c
	}
}

// WithTx replaces the default in-process mutation lock, e.g. with a database
// transaction runner.
func WithTx(tx StoreTx) Option {
	return func(c *serviceConfig) {
		c.tx = tx
	}
}
