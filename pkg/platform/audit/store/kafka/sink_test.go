package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "aidreg/pkg/platform/audit"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, records ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, records...)
	results := make(kgo.ProduceResults, 0, len(records))
	for _, r := range records {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestSinkAppend(t *testing.T) {
	producer := &fakeProducer{}
	sink := NewSink(producer, "aidreg.audit")

	err := sink.Append(context.Background(), audit.Event{
		Action:      string(audit.EventRecipientVerified),
		Category:    audit.CategoryCompliance,
		RecipientID: "recipient-001",
		Actor:       "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM",
		Height:      42,
	})
	require.NoError(t, err)
	require.Len(t, producer.records, 1)

	rec := producer.records[0]
	assert.Equal(t, "aidreg.audit", rec.Topic)
	assert.Equal(t, "recipient-001", string(rec.Key))

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, uint64(42), decoded.Height)
	assert.Equal(t, "recipient_verified", decoded.Action)
}

func TestSinkAppendPropagatesProduceError(t *testing.T) {
	sink := NewSink(&fakeProducer{err: errors.New("not leader")}, "aidreg.audit")

	err := sink.Append(context.Background(), audit.Event{Action: "admin_transferred", Actor: "ST1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not leader")
}
