package store

import (
	"context"
	"fmt"
	"sync"

	"aidreg/internal/recipient/models"
	id "aidreg/pkg/domain"
	"aidreg/pkg/platform/sentinel"
)

// InMemory keeps the registry in process memory. Records are copied on the
// way in and out so readers never observe a partially applied write.
type InMemory struct {
	mu         sync.RWMutex
	recipients map[id.RecipientID]*models.Recipient
	admin      id.Principal
	adminSet   bool
}

// NewInMemory creates an empty in-memory registry store.
func NewInMemory() *InMemory {
	return &InMemory{
		recipients: make(map[id.RecipientID]*models.Recipient),
	}
}

// CreateIfAbsent inserts r unless its id is already registered.
func (s *InMemory) CreateIfAbsent(_ context.Context, r *models.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recipients[r.ID]; exists {
		return fmt.Errorf("recipient %s: %w", r.ID, sentinel.ErrAlreadyUsed)
	}
	s.recipients[r.ID] = r.Clone()
	return nil
}

func (s *InMemory) Update(_ context.Context, r *models.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recipients[r.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.recipients[r.ID] = r.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, recipientID id.RecipientID) (*models.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.recipients[recipientID]; ok {
		return r.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindMany returns the records that exist among ids, keyed by id.
func (s *InMemory) FindMany(_ context.Context, ids []id.RecipientID) (map[id.RecipientID]*models.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.RecipientID]*models.Recipient, len(ids))
	for _, recipientID := range ids {
		if r, ok := s.recipients[recipientID]; ok {
			out[recipientID] = r.Clone()
		}
	}
	return out, nil
}

func (s *InMemory) List(_ context.Context, q models.ListQuery) (*models.RecipientPage, error) {
	q = q.Normalized()
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]id.RecipientID, 0, len(s.recipients))
	for k := range s.recipients {
		if k > q.After {
			keys = append(keys, k)
		}
	}
	candidates := make([]*models.Recipient, 0, q.Limit+1)
	for _, k := range sortedIDs(keys) {
		r := s.recipients[k]
		if !q.Matches(r) {
			continue
		}
		candidates = append(candidates, r.Clone())
		if len(candidates) > q.Limit {
			break
		}
	}
	return pageFrom(candidates, q.Limit), nil
}

// Admin returns the stored admin or sentinel.ErrNotInitialized.
func (s *InMemory) Admin(_ context.Context) (id.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.adminSet {
		return "", sentinel.ErrNotInitialized
	}
	return s.admin, nil
}

// InitAdmin stores p only when no admin exists and returns the effective admin.
func (s *InMemory) InitAdmin(_ context.Context, p id.Principal) (id.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.adminSet {
		s.admin = p
		s.adminSet = true
	}
	return s.admin, nil
}

func (s *InMemory) SetAdmin(_ context.Context, p id.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin = p
	s.adminSet = true
	return nil
}
