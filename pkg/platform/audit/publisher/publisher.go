package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	dErrors "aidreg/pkg/domain-errors"
	audit "aidreg/pkg/platform/audit"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store   audit.Store
	events  chan audit.Event
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *Metrics
	async   bool
	closed  sync.Once
	timeout time.Duration

	// mu guards stopped and the send on events against Close.
	mu      sync.RWMutex
	stopped bool
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithAsyncBuffer enables async processing with the specified buffer size.
// Events are queued and persisted in a background goroutine.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan audit.Event, size)
			p.async = true
		}
	}
}

// WithPublisherLogger sets a logger for async error reporting.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithPersistTimeout bounds each background write. Defaults to 5s.
func WithPersistTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPublisher(store audit.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if p.metrics != nil {
			p.metrics.QueueDepth.Set(float64(len(p.events)))
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.persist(ctx, event); err != nil && p.logger != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
				"event_id", event.ID.String(),
			)
		}
		cancel()
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	start := time.Now()
	err := p.store.Append(ctx, event)
	if p.metrics != nil {
		p.metrics.PersistDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			p.metrics.PersistFailures.Inc()
		}
	}
	return err
}

// Close shuts down the async publisher and waits for pending events to drain.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.async && p.events != nil {
			p.mu.Lock()
			p.stopped = true
			close(p.events)
			p.mu.Unlock()
			p.wg.Wait()
		}
	})
}

// Emit stamps the event with an ID, timestamp and category, then persists it
// synchronously or enqueues it when async buffering is enabled.
func (p *Publisher) Emit(ctx context.Context, base audit.Event) error {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	if base.Category == "" {
		base.Category = audit.AuditEvent(base.Action).Category()
	}
	if !p.async {
		return p.persist(ctx, base)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.drop(base, "audit publisher closed, event dropped")
		return dErrors.New(dErrors.CodeInternal, "audit publisher closed")
	}
	select {
	case p.events <- base:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.drop(base, "audit buffer full, event dropped")
		return dErrors.New(dErrors.CodeInternal, "audit buffer full")
	}
}

func (p *Publisher) drop(event audit.Event, msg string) {
	if p.metrics != nil {
		p.metrics.EventsDropped.Inc()
	}
	if p.logger != nil {
		p.logger.Warn(msg,
			"action", event.Action,
			"event_id", event.ID.String(),
		)
	}
}
