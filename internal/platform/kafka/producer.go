// Package kafka wraps franz-go for audit publishing and topic provisioning.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrProducerClosed is returned when producing after Close.
var ErrProducerClosed = errors.New("producer is closed")

// Config holds producer configuration.
type Config struct {
	Brokers         string
	ClientID        string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// Producer wraps the franz-go client with lifecycle tracking.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// SeedBrokers splits a comma-separated broker list, dropping blanks.
func SeedBrokers(raw string) []string {
	var out []string
	for b := range strings.SplitSeq(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func acksFor(setting string) kgo.Acks {
	switch setting {
	case "0":
		return kgo.NoAck()
	case "1":
		return kgo.LeaderAck()
	default:
		return kgo.AllISRAcks()
	}
}

// NewProducer creates a producer connected to cfg.Brokers.
func NewProducer(cfg Config, logger *slog.Logger) (*Producer, error) {
	brokers := SeedBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	acks := acksFor(cfg.Acks)
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(acks),
		kgo.RecordRetries(cfg.Retries),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	// Idempotent writes require all-ISR acks.
	if cfg.Acks == "0" || cfg.Acks == "1" {
		opts = append(opts, kgo.DisableIdempotentWrite())
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// ProduceSync sends records and waits for broker acknowledgement.
func (p *Producer) ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		results := make(kgo.ProduceResults, 0, len(records))
		for _, r := range records {
			results = append(results, kgo.ProduceResult{Record: r, Err: ErrProducerClosed})
		}
		return results
	}
	return p.client.ProduceSync(ctx, records...)
}

// Close flushes buffered records and shuts the client down.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil && p.logger != nil {
		p.logger.Warn("kafka producer closed with unflushed messages", "error", err)
	}
	p.client.Close()
	return nil
}

// Healthy pings the brokers.
func (p *Producer) Healthy(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	return p.client.Ping(ctx)
}

// Client exposes the underlying client for admin operations.
func (p *Producer) Client() *kgo.Client {
	return p.client
}
