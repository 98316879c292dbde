package service

import (
	"context"
	"errors"
	"log/slog"

	"aidreg/internal/recipient/models"
	id "aidreg/pkg/domain"
	dErrors "aidreg/pkg/domain-errors"
	"aidreg/pkg/platform/audit"
	"aidreg/pkg/platform/sentinel"
	"aidreg/pkg/requestcontext"
)

// Store interfaces define persistence contracts.

type RecipientStore interface {
	CreateIfAbsent(ctx context.Context, r *models.Recipient) error
	Update(ctx context.Context, r *models.Recipient) error
	FindByID(ctx context.Context, recipientID id.RecipientID) (*models.Recipient, error)
	FindMany(ctx context.Context, ids []id.RecipientID) (map[id.RecipientID]*models.Recipient, error)
	List(ctx context.Context, q models.ListQuery) (*models.RecipientPage, error)
}

type AdminStore interface {
	Admin(ctx context.Context) (id.Principal, error)
	InitAdmin(ctx context.Context, p id.Principal) (id.Principal, error)
	SetAdmin(ctx context.Context, p id.Principal) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// requireRecipientID rejects ids that could never be stored.
func requireRecipientID(recipientID id.RecipientID) error {
	if !wellFormed(recipientID) {
		return dErrors.New(dErrors.CodeValidation, "recipient id must be 1 to 64 printable bytes")
	}
	return nil
}

// wellFormed reports whether recipientID could name a stored record. Reads
// treat anything else as absent.
func wellFormed(recipientID id.RecipientID) bool {
	parsed, err := id.ParseRecipientID(recipientID.String())
	return err == nil && parsed == recipientID
}

// Error wrapping helpers translate sentinel errors to domain errors.

func wrapRecipientErr(err error, action string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "recipient not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, action)
}

func wrapAdminErr(err error) error {
	if errors.Is(err, sentinel.ErrNotInitialized) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "registry admin not initialized")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registry admin")
}

// auditEmitter handles audit logging and event emission. Failures are logged
// and never change the outcome of the operation that produced the event.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	return &auditEmitter{logger: logger, publisher: publisher}
}

func (e *auditEmitter) emitRecipientRegistered(ctx context.Context, ev models.RecipientRegistered) {
	e.emit(ctx, audit.Event{
		Action:      string(audit.EventRecipientRegistered),
		Actor:       ev.Admin,
		RecipientID: ev.RecipientID,
		Height:      ev.Height,
	})
}

func (e *auditEmitter) emitRecipientVerified(ctx context.Context, ev models.RecipientVerified) {
	reason := ""
	if ev.WasVerified {
		reason = "reverified"
	}
	e.emit(ctx, audit.Event{
		Action:      string(audit.EventRecipientVerified),
		Actor:       ev.Admin,
		RecipientID: ev.RecipientID,
		Height:      ev.LastVerified,
		Reason:      reason,
	})
}

func (e *auditEmitter) emitAdminTransferred(ctx context.Context, ev models.AdminTransferred) {
	e.emit(ctx, audit.Event{
		Action:  string(audit.EventAdminTransferred),
		Actor:   ev.PreviousAdmin,
		Subject: ev.NewAdmin,
	})
}

func (e *auditEmitter) emitAdminInitialized(ctx context.Context, ev models.AdminInitialized) {
	e.emit(ctx, audit.Event{
		Action:  string(audit.EventAdminInitialized),
		Subject: ev.Admin,
	})
}

func (e *auditEmitter) emitAuthorizationDenied(ctx context.Context, ev models.AuthorizationDenied) {
	e.emit(ctx, audit.Event{
		Action: string(audit.EventAuthorizationDenied),
		Actor:  ev.Caller,
		Reason: ev.Operation,
	})
}

func (e *auditEmitter) emitDuplicateRejected(ctx context.Context, caller id.Principal, recipientID id.RecipientID) {
	e.emit(ctx, audit.Event{
		Action:      string(audit.EventDuplicateRejected),
		Actor:       caller,
		RecipientID: recipientID,
	})
}

func (e *auditEmitter) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	e.logToText(ctx, event)
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Emit(ctx, event); err != nil && e.logger != nil {
		e.logger.ErrorContext(ctx, "failed to emit audit event",
			"event", event.Action,
			"error", err,
		)
	}
}

func (e *auditEmitter) logToText(ctx context.Context, event audit.Event) {
	if e.logger == nil {
		return
	}
	args := []any{"event", event.Action, "log_type", "audit"}
	if !event.Actor.IsNil() {
		args = append(args, "actor", event.Actor.String())
	}
	if !event.RecipientID.IsNil() {
		args = append(args, "recipient_id", event.RecipientID.String())
	}
	if !event.Subject.IsNil() {
		args = append(args, "subject", event.Subject.String())
	}
	if event.Height != 0 {
		args = append(args, "height", event.Height)
	}
	if event.Reason != "" {
		args = append(args, "reason", event.Reason)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	e.logger.InfoContext(ctx, event.Action, args...)
}
