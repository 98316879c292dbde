//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "aidreg/pkg/platform/audit"
	txcontext "aidreg/pkg/platform/tx"
	"aidreg/pkg/testutil/containers"
)

func TestStoreAppendAndList(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.TruncateAll(ctx))
	s := New(pg.DB)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	registered := audit.Event{
		ID:          uuid.New(),
		Timestamp:   base,
		Action:      string(audit.EventRecipientRegistered),
		Actor:       "ST1ADMIN",
		RecipientID: "recipient-001",
		Height:      100,
		RequestID:   "req-1",
	}
	verified := audit.Event{
		Timestamp:   base.Add(time.Minute),
		Action:      string(audit.EventRecipientVerified),
		Category:    audit.CategoryCompliance,
		Actor:       "ST1ADMIN",
		RecipientID: "recipient-001",
		Height:      101,
	}
	require.NoError(t, s.Append(ctx, registered))
	require.NoError(t, s.Append(ctx, verified))
	require.NoError(t, s.Append(ctx, audit.Event{
		Timestamp: base,
		Action:    string(audit.EventAdminTransferred),
		Actor:     "ST1ADMIN",
		Subject:   "ST2NEXT",
	}))

	events, err := s.ListByRecipient(ctx, "recipient-001")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, registered.ID, events[0].ID)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category, "category derived from action")
	assert.Equal(t, uint64(100), events[0].Height)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, string(audit.EventRecipientVerified), events[1].Action)
	assert.NotEqual(t, uuid.Nil, events[1].ID)
}

func TestStoreAppendIsIdempotentByID(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.TruncateAll(ctx))
	s := New(pg.DB)

	event := audit.Event{
		ID:          uuid.New(),
		Timestamp:   time.Now().UTC(),
		Action:      string(audit.EventRecipientRegistered),
		RecipientID: "recipient-002",
	}
	require.NoError(t, s.Append(ctx, event))
	require.NoError(t, s.Append(ctx, event))

	events, err := s.ListByRecipient(ctx, "recipient-002")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStoreAppendJoinsTransaction(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.TruncateAll(ctx))
	s := New(pg.DB)

	tx, err := pg.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(txcontext.WithTx(ctx, tx), audit.Event{
		Timestamp:   time.Now().UTC(),
		Action:      string(audit.EventRecipientVerified),
		RecipientID: "recipient-003",
	}))
	require.NoError(t, tx.Rollback())

	events, err := s.ListByRecipient(ctx, "recipient-003")
	require.NoError(t, err)
	assert.Empty(t, events)
}
