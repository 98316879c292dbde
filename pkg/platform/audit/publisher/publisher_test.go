package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "aidreg/pkg/platform/audit"
	"aidreg/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Action:      string(audit.EventRecipientRegistered),
		RecipientID: "recipient-001",
	})
	require.NoError(t, err)

	events, err := store.ListByRecipient(context.Background(), "recipient-001")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))

	for range 5 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: string(audit.EventRecipientVerified)}))
	}
	pub.Close()

	events, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestPublisher_CloseIsIdempotent(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	assert.NotPanics(t, pub.Close)
}

func TestPublisher_EmitAfterCloseIsDropped(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(store, WithAsyncBuffer(4), WithMetrics(m))
	pub.Close()

	var err error
	require.NotPanics(t, func() {
		err = pub.Emit(context.Background(), audit.Event{Action: string(audit.EventRecipientVerified)})
	})
	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EventsDropped), 0)

	events, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPublisher_EmitRacingCloseNeverPanics(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(8))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_ = pub.Emit(context.Background(), audit.Event{Action: string(audit.EventRecipientVerified)})
			}
		}()
	}
	pub.Close()
	wg.Wait()
}

// blockingStore holds every Append until release is closed.
type blockingStore struct {
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (b *blockingStore) Append(context.Context, audit.Event) error {
	<-b.release
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
	return nil
}

func TestPublisher_BufferFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub := NewPublisher(store, WithAsyncBuffer(1), WithMetrics(m))

	ctx := context.Background()
	var dropped int
	for range 10 {
		if err := pub.Emit(ctx, audit.Event{Action: "recipient_verified"}); err != nil {
			dropped++
		}
	}
	close(store.release)
	pub.Close()

	assert.Positive(t, dropped)
	assert.InDelta(t, float64(dropped), testutil.ToFloat64(m.EventsDropped), 0)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }

func TestPublisher_SyncFailureSurfaces(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(failingStore{}, WithMetrics(m), WithPersistTimeout(time.Second))

	err := pub.Emit(context.Background(), audit.Event{Action: "admin_transferred"})

	require.Error(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PersistFailures), 0)
}
