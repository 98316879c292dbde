// Package kafka publishes audit events as JSON records.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "aidreg/pkg/platform/audit"
)

// RecordProducer is satisfied by *kgo.Client and the platform producer.
type RecordProducer interface {
	ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

// Sink implements audit.Store by writing each event to a topic, keyed by
// recipient id or acting principal so per-recipient ordering is preserved.
type Sink struct {
	producer RecordProducer
	topic    string
}

func NewSink(producer RecordProducer, topic string) *Sink {
	return &Sink{producer: producer, topic: topic}
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Key()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "category", Value: []byte(event.Category)},
		},
	}
	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}
