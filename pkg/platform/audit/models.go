package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "aidreg/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers state changes of the registry itself.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected or suspicious access.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Category    EventCategory  `json:"category"`
	Timestamp   time.Time      `json:"timestamp"`
	Action      string         `json:"action"`
	Actor       id.Principal   `json:"actor,omitempty"`
	RecipientID id.RecipientID `json:"recipient_id,omitempty"`
	// Subject is the principal acted upon, e.g. the incoming admin on a transfer.
	Subject   id.Principal `json:"subject,omitempty"`
	Height    uint64       `json:"height,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

// Key returns the partition key for the event: the recipient when present,
// otherwise the acting principal.
func (e Event) Key() string {
	if !e.RecipientID.IsNil() {
		return e.RecipientID.String()
	}
	return e.Actor.String()
}

type AuditEvent string

const (
	EventRecipientRegistered AuditEvent = "recipient_registered"
	EventRecipientVerified   AuditEvent = "recipient_verified"
	EventAdminTransferred    AuditEvent = "admin_transferred"
	EventAdminInitialized    AuditEvent = "admin_initialized"
	EventAuthorizationDenied AuditEvent = "authorization_denied"
	EventDuplicateRejected   AuditEvent = "duplicate_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRecipientRegistered: CategoryCompliance,
	EventRecipientVerified:   CategoryCompliance,
	EventAdminTransferred:    CategoryCompliance,
	EventAdminInitialized:    CategoryCompliance,

	EventAuthorizationDenied: CategorySecurity,

	EventDuplicateRejected: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Fanout appends each event to every store in order and returns the first error.
// Later stores are still attempted after a failure.
type Fanout []Store

func (f Fanout) Append(ctx context.Context, event Event) error {
	var first error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
