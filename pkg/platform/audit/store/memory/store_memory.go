package memory

import (
	"context"
	"slices"
	"sync"

	id "aidreg/pkg/domain"
	audit "aidreg/pkg/platform/audit"
)

// InMemoryStore keeps audit events in arrival order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByRecipient returns events that reference the given recipient.
func (s *InMemoryStore) ListByRecipient(_ context.Context, recipientID id.RecipientID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.RecipientID == recipientID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every stored event.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events), nil
}

// ListRecent returns the most recent limit events, newest last.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.events)-limit, 0)
	return slices.Clone(s.events[start:]), nil
}
