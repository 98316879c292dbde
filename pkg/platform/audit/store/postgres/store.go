package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "aidreg/pkg/domain"
	audit "aidreg/pkg/platform/audit"
	txcontext "aidreg/pkg/platform/tx"
)

// Store persists audit events to the audit_events table. When called inside a
// transaction found in context the insert joins it.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	query := `
		INSERT INTO audit_events (id, category, occurred_at, action, actor, recipient_id, subject, height, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		string(category),
		event.Timestamp,
		event.Action,
		nullString(event.Actor.String()),
		nullString(event.RecipientID.String()),
		nullString(event.Subject.String()),
		int64(event.Height), //nolint:gosec // block heights fit in int64
		nullString(event.Reason),
		nullString(event.RequestID),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByRecipient returns events for a recipient, oldest first.
func (s *Store) ListByRecipient(ctx context.Context, recipientID id.RecipientID) ([]audit.Event, error) {
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, category, occurred_at, action, actor, recipient_id, subject, height, reason, request_id
		FROM audit_events
		WHERE recipient_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, recipientID.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e                                            audit.Event
			category                                     string
			actor, recipient, subject, reason, requestID sql.NullString
			height                                       int64
		)
		if err := rows.Scan(&e.ID, &category, &e.Timestamp, &e.Action, &actor, &recipient, &subject, &height, &reason, &requestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.Actor = id.Principal(actor.String)
		e.RecipientID = id.RecipientID(recipient.String)
		e.Subject = id.Principal(subject.String)
		e.Height = uint64(height) //nolint:gosec // stored from uint64
		e.Reason = reason.String
		e.RequestID = requestID.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
