package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidreg/internal/recipient/models"
	id "aidreg/pkg/domain"
	"aidreg/pkg/platform/sentinel"
)

// registryStore is the union of contracts every backend implements.
type registryStore interface {
	CreateIfAbsent(ctx context.Context, r *models.Recipient) error
	Update(ctx context.Context, r *models.Recipient) error
	FindByID(ctx context.Context, recipientID id.RecipientID) (*models.Recipient, error)
	FindMany(ctx context.Context, ids []id.RecipientID) (map[id.RecipientID]*models.Recipient, error)
	List(ctx context.Context, q models.ListQuery) (*models.RecipientPage, error)
	Admin(ctx context.Context) (id.Principal, error)
	InitAdmin(ctx context.Context, p id.Principal) (id.Principal, error)
	SetAdmin(ctx context.Context, p id.Principal) error
}

var (
	_ registryStore = (*InMemory)(nil)
	_ registryStore = (*PostgresStore)(nil)
	_ registryStore = (*RedisStore)(nil)
	_ registryStore = (*BoltStore)(nil)
)

func newRecipient(t *testing.T, recipientID string, height uint64) *models.Recipient {
	t.Helper()
	// Postgres keeps microseconds; truncate so round trips compare equal.
	now := time.Now().UTC().Truncate(time.Millisecond)
	r, err := models.NewRecipient(id.RecipientID(recipientID), "John Doe", "Refugee Camp A", "Needs food and shelter", height, now)
	require.NoError(t, err)
	return r
}

// runStoreContract exercises behavior shared by all backends. newStore must
// return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) registryStore) {
	ctx := context.Background()

	t.Run("create then find", func(t *testing.T) {
		s := newStore(t)
		r := newRecipient(t, "recipient-001", 100)
		require.NoError(t, s.CreateIfAbsent(ctx, r))

		found, err := s.FindByID(ctx, "recipient-001")
		require.NoError(t, err)
		assert.Equal(t, r.Name, found.Name)
		assert.Equal(t, r.Location, found.Location)
		assert.Equal(t, r.NeedsAssessment, found.NeedsAssessment)
		assert.False(t, found.Verified)
		assert.Equal(t, uint64(100), found.LastVerified)
	})

	t.Run("duplicate create leaves the first record", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateIfAbsent(ctx, newRecipient(t, "recipient-001", 100)))

		dup := newRecipient(t, "recipient-001", 200)
		dup.Name = "Someone Else"
		err := s.CreateIfAbsent(ctx, dup)
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)

		found, err := s.FindByID(ctx, "recipient-001")
		require.NoError(t, err)
		assert.Equal(t, "John Doe", found.Name)
		assert.Equal(t, uint64(100), found.LastVerified)
	})

	t.Run("missing record", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByID(ctx, "nope")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		err = s.Update(ctx, newRecipient(t, "nope", 1))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("update persists verification", func(t *testing.T) {
		s := newStore(t)
		r := newRecipient(t, "recipient-001", 100)
		require.NoError(t, s.CreateIfAbsent(ctx, r))

		r.Verify(150, time.Now())
		require.NoError(t, s.Update(ctx, r))

		found, err := s.FindByID(ctx, "recipient-001")
		require.NoError(t, err)
		assert.True(t, found.Verified)
		assert.Equal(t, uint64(150), found.LastVerified)
	})

	t.Run("find many skips unknown ids", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateIfAbsent(ctx, newRecipient(t, "a", 1)))
		require.NoError(t, s.CreateIfAbsent(ctx, newRecipient(t, "b", 1)))

		found, err := s.FindMany(ctx, []id.RecipientID{"a", "b", "c"})
		require.NoError(t, err)
		assert.Len(t, found, 2)
		assert.Contains(t, found, id.RecipientID("a"))
		assert.NotContains(t, found, id.RecipientID("c"))

		empty, err := s.FindMany(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("list pages in id order", func(t *testing.T) {
		s := newStore(t)
		for i := range 5 {
			r := newRecipient(t, fmt.Sprintf("r-%02d", i), 1)
			if i%2 == 0 {
				r.Verify(2, time.Now())
			}
			require.NoError(t, s.CreateIfAbsent(ctx, r))
		}

		page, err := s.List(ctx, models.ListQuery{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Recipients, 2)
		assert.Equal(t, id.RecipientID("r-00"), page.Recipients[0].ID)
		assert.Equal(t, id.RecipientID("r-01"), page.NextAfter)

		page, err = s.List(ctx, models.ListQuery{After: page.NextAfter, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Recipients, 2)
		assert.Equal(t, id.RecipientID("r-02"), page.Recipients[0].ID)

		page, err = s.List(ctx, models.ListQuery{After: page.NextAfter, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Recipients, 1)
		assert.True(t, page.NextAfter.IsNil())

		verified := true
		page, err = s.List(ctx, models.ListQuery{Verified: &verified, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page.Recipients, 3)
		for _, r := range page.Recipients {
			assert.True(t, r.Verified)
		}
	})

	t.Run("admin lifecycle", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Admin(ctx)
		assert.ErrorIs(t, err, sentinel.ErrNotInitialized)

		admin, err := s.InitAdmin(ctx, "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
		require.NoError(t, err)
		assert.Equal(t, id.Principal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"), admin)

		admin, err = s.InitAdmin(ctx, "someone-else")
		require.NoError(t, err)
		assert.Equal(t, id.Principal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"), admin, "init never replaces")

		require.NoError(t, s.SetAdmin(ctx, "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"))
		admin, err = s.Admin(ctx)
		require.NoError(t, err)
		assert.Equal(t, id.Principal("ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"), admin)
	})

	t.Run("an empty admin still counts as initialized", func(t *testing.T) {
		s := newStore(t)
		_, err := s.InitAdmin(ctx, "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
		require.NoError(t, err)
		require.NoError(t, s.SetAdmin(ctx, ""))

		admin, err := s.Admin(ctx)
		require.NoError(t, err)
		assert.Equal(t, id.Principal(""), admin)

		admin, err = s.InitAdmin(ctx, "intruder")
		require.NoError(t, err)
		assert.Equal(t, id.Principal(""), admin)
	})

	t.Run("concurrent creates admit one winner", func(t *testing.T) {
		s := newStore(t)
		const workers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			created  int
			rejected int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.CreateIfAbsent(ctx, newRecipient(t, "contended", 1))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					created++
				} else if assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed) {
					rejected++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
		assert.Equal(t, workers-1, rejected)
	})
}
