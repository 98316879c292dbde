// Package service implements the recipient registry: one admin principal
// registers and verifies recipients, anyone may read them.
package service

import (
	"context"
	"errors"
	"time"

	"aidreg/internal/platform/clock"
	"aidreg/internal/platform/tracer"
	recipientmetrics "aidreg/internal/recipient/metrics"
	"aidreg/internal/recipient/models"
	id "aidreg/pkg/domain"
	dErrors "aidreg/pkg/domain-errors"
	"aidreg/pkg/platform/sentinel"
	"aidreg/pkg/requestcontext"
)

// Operation names used for metrics and audit reasons.
const (
	opRegister             = "register"
	opVerify               = "verify"
	opIsVerified           = "is_verified"
	opGetDetails           = "get_details"
	opTransferAdmin        = "transfer_admin"
	opReadAdmin            = "read_admin"
	opDeploy               = "deploy"
	opList                 = "list"
	opVerificationStatuses = "verification_statuses"
)

// RegisterCommand carries the fields of a new recipient.
type RegisterCommand struct {
	ID              id.RecipientID
	Name            string
	Location        string
	NeedsAssessment string
}

// Service is the recipient registry. Mutations run inside StoreTx so they never
// interleave; reads go straight to the store.
type Service struct {
	recipients   RecipientStore
	admins       AdminStore
	auditEmitter *auditEmitter
	metrics      *recipientmetrics.Metrics
	tracer       tracer.Tracer
	clock        clock.Clock
	tx           StoreTx
}

func New(recipients RecipientStore, admins AdminStore, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	tx := cfg.tx
	if tx == nil {
		tx = newInMemoryStoreTx()
	}
	tr := cfg.tracer
	if tr == nil {
		tr = tracer.NewNoop()
	}
	clk := cfg.clock
	if clk == nil {
		clk = clock.Fixed(0)
	}
	return &Service{
		recipients:   recipients,
		admins:       admins,
		auditEmitter: newAuditEmitter(cfg.logger, cfg.auditPublisher),
		metrics:      cfg.metrics,
		tracer:       tr,
		clock:        clk,
		tx:           tx,
	}
}

// Deploy installs deployer as admin when the registry has none and returns the
// effective admin. Calling it again on an initialized registry changes nothing.
func (s *Service) Deploy(ctx context.Context, deployer id.Principal) (admin id.Principal, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanDeploy)
	defer s.finish(span, opDeploy, time.Now(), &err)

	if deployer.IsNil() {
		return "", dErrors.New(dErrors.CodeBadRequest, "deployer principal required")
	}
	initialized := false
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.admins.Admin(txCtx)
		if err == nil {
			admin = current
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotInitialized) {
			return wrapAdminErr(err)
		}
		admin, err = s.admins.InitAdmin(txCtx, deployer)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to initialize registry admin")
		}
		initialized = admin == deployer
		return nil
	})
	if err != nil {
		return "", err
	}
	if initialized {
		s.auditEmitter.emitAdminInitialized(ctx, models.AdminInitialized{Admin: admin})
		span.AddEvent(tracer.EventAuditEmitted)
	}
	return admin, nil
}

// Register adds an unverified recipient stamped with the current height.
// Only the admin may register; an id that is already taken is rejected
// without touching the stored record.
func (s *Service) Register(ctx context.Context, caller id.Principal, cmd RegisterCommand) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRegister, tracer.RecipientID(cmd.ID.String()))
	defer s.finish(span, opRegister, time.Now(), &err)

	var registered *models.Recipient
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requireAdmin(txCtx, caller); err != nil {
			return err
		}
		if err := requireRecipientID(cmd.ID); err != nil {
			return err
		}
		height := s.clock.Height(txCtx)
		r, err := models.NewRecipient(cmd.ID, cmd.Name, cmd.Location, cmd.NeedsAssessment, height, requestcontext.Now(txCtx))
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
		if err := s.recipients.CreateIfAbsent(txCtx, r); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "recipient id already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to register recipient")
		}
		registered = r
		return nil
	})
	if err != nil {
		s.auditRejection(ctx, caller, cmd.ID, opRegister, err)
		return err
	}

	span.SetAttributes(tracer.Int64(tracer.AttrHeight, int64(registered.LastVerified))) //nolint:gosec // heights fit in int64
	s.incrementRegistered()
	s.auditEmitter.emitRecipientRegistered(ctx, models.RecipientRegistered{
		RecipientID: registered.ID,
		Admin:       caller,
		Height:      registered.LastVerified,
	})
	span.AddEvent(tracer.EventAuditEmitted)
	return nil
}

// Verify marks a recipient verified and re-stamps lastVerified. Verifying an
// already verified recipient succeeds and only refreshes the stamp.
func (s *Service) Verify(ctx context.Context, caller id.Principal, recipientID id.RecipientID) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify, tracer.RecipientID(recipientID.String()))
	defer s.finish(span, opVerify, time.Now(), &err)

	var event models.RecipientVerified
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requireAdmin(txCtx, caller); err != nil {
			return err
		}
		if !wellFormed(recipientID) {
			return dErrors.New(dErrors.CodeNotFound, "recipient not found")
		}
		r, err := s.recipients.FindByID(txCtx, recipientID)
		if err != nil {
			return wrapRecipientErr(err, "failed to load recipient")
		}
		height := s.clock.Height(txCtx)
		event = models.RecipientVerified{
			RecipientID: recipientID,
			Admin:       caller,
			Height:      height,
			WasVerified: r.Verified,
		}
		r.Verify(height, requestcontext.Now(txCtx))
		if err := s.recipients.Update(txCtx, r); err != nil {
			return wrapRecipientErr(err, "failed to update recipient")
		}
		event.LastVerified = r.LastVerified
		return nil
	})
	if err != nil {
		s.auditRejection(ctx, caller, recipientID, opVerify, err)
		return err
	}

	span.SetAttributes(tracer.Int64(tracer.AttrHeight, int64(event.LastVerified))) //nolint:gosec // heights fit in int64
	s.incrementVerified()
	s.auditEmitter.emitRecipientVerified(ctx, event)
	span.AddEvent(tracer.EventAuditEmitted)
	return nil
}

// IsVerified reports the verification flag. Open to any caller.
func (s *Service) IsVerified(ctx context.Context, recipientID id.RecipientID) (verified bool, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanIsVerified, tracer.RecipientID(recipientID.String()))
	defer s.finish(span, opIsVerified, time.Now(), &err)

	if !wellFormed(recipientID) {
		return false, dErrors.New(dErrors.CodeNotFound, "recipient not found")
	}
	r, err := s.recipients.FindByID(ctx, recipientID)
	if err != nil {
		return false, wrapRecipientErr(err, "failed to load recipient")
	}
	return r.Verified, nil
}

// GetDetails returns the full record. A missing or malformed id is reported as
// (nil, false, nil); only infrastructure failures produce an error.
func (s *Service) GetDetails(ctx context.Context, recipientID id.RecipientID) (r *models.Recipient, found bool, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanGetDetails, tracer.RecipientID(recipientID.String()))
	defer s.finish(span, opGetDetails, time.Now(), &err)

	if !wellFormed(recipientID) {
		span.SetAttributes(tracer.Bool(tracer.AttrFound, false))
		return nil, false, nil
	}
	r, err = s.recipients.FindByID(ctx, recipientID)
	if errors.Is(err, sentinel.ErrNotFound) {
		span.SetAttributes(tracer.Bool(tracer.AttrFound, false))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load recipient")
	}
	span.SetAttributes(tracer.Bool(tracer.AttrFound, true))
	return r, true, nil
}

// TransferAdmin hands the admin role to newAdmin. Only the current admin may
// transfer; the previous admin loses every privilege immediately.
func (s *Service) TransferAdmin(ctx context.Context, caller, newAdmin id.Principal) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanTransferAdmin)
	defer s.finish(span, opTransferAdmin, time.Now(), &err)

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requireAdmin(txCtx, caller); err != nil {
			return err
		}
		if err := s.admins.SetAdmin(txCtx, newAdmin); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer admin")
		}
		return nil
	})
	if err != nil {
		s.auditRejection(ctx, caller, "", opTransferAdmin, err)
		return err
	}

	s.incrementAdminTransfers()
	s.auditEmitter.emitAdminTransferred(ctx, models.AdminTransferred{
		PreviousAdmin: caller,
		NewAdmin:      newAdmin,
	})
	span.AddEvent(tracer.EventAuditEmitted)
	return nil
}

// Admin returns the current admin principal.
func (s *Service) Admin(ctx context.Context) (admin id.Principal, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanReadAdmin)
	defer s.finish(span, opReadAdmin, time.Now(), &err)

	admin, err = s.admins.Admin(ctx)
	if err != nil {
		return "", wrapAdminErr(err)
	}
	return admin, nil
}

// List returns one id-ordered page of recipients.
func (s *Service) List(ctx context.Context, q models.ListQuery) (page *models.RecipientPage, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanList)
	defer s.finish(span, opList, time.Now(), &err)

	if q.Limit < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "limit must not be negative")
	}
	page, err = s.recipients.List(ctx, q.Normalized())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list recipients")
	}
	span.SetAttributes(tracer.Int64(tracer.AttrBatchSize, int64(len(page.Recipients))))
	return page, nil
}

// VerificationStatuses looks up the verification flag of several recipients at
// once. Unknown and malformed ids are absent from the result.
func (s *Service) VerificationStatuses(ctx context.Context, ids []id.RecipientID) (statuses map[id.RecipientID]bool, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerificationStatuses, tracer.Int64(tracer.AttrBatchSize, int64(len(ids))))
	defer s.finish(span, opVerificationStatuses, time.Now(), &err)

	if len(ids) > models.MaxBatchSize {
		return nil, dErrors.New(dErrors.CodeBadRequest, "too many recipient ids")
	}
	unique := make([]id.RecipientID, 0, len(ids))
	seen := make(map[id.RecipientID]struct{}, len(ids))
	for _, recipientID := range ids {
		if !wellFormed(recipientID) {
			continue
		}
		if _, dup := seen[recipientID]; dup {
			continue
		}
		seen[recipientID] = struct{}{}
		unique = append(unique, recipientID)
	}

	records, err := s.recipients.FindMany(ctx, unique)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load recipients")
	}
	statuses = make(map[id.RecipientID]bool, len(records))
	for recipientID, r := range records {
		statuses[recipientID] = r.Verified
	}
	return statuses, nil
}

// requireAdmin is the single authorization guard for every mutation.
func (s *Service) requireAdmin(ctx context.Context, caller id.Principal) error {
	admin, err := s.admins.Admin(ctx)
	if err != nil {
		return wrapAdminErr(err)
	}
	if caller.IsNil() || caller != admin {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the registry admin")
	}
	return nil
}

// auditRejection records rejected mutations that matter for security or
// operations review.
func (s *Service) auditRejection(ctx context.Context, caller id.Principal, recipientID id.RecipientID, operation string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeForbidden:
		s.auditEmitter.emitAuthorizationDenied(ctx, models.AuthorizationDenied{Caller: caller, Operation: operation})
	case dErrors.CodeConflict:
		s.auditEmitter.emitDuplicateRejected(ctx, caller, recipientID)
	}
}

// finish closes the span and records duration and rejection metrics.
func (s *Service) finish(span tracer.Span, operation string, start time.Time, errp *error) {
	err := *errp
	if code, ok := models.ResultCode(err); ok {
		span.SetAttributes(tracer.Int64(tracer.AttrResultCode, int64(code)))
		if s.metrics != nil {
			s.metrics.IncrementRejection(operation, code)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, start)
	}
	span.End(err)
}

func (s *Service) incrementRegistered() {
	if s.metrics != nil {
		s.metrics.IncrementRegistered()
	}
}

func (s *Service) incrementVerified() {
	if s.metrics != nil {
		s.metrics.IncrementVerified()
	}
}

func (s *Service) incrementAdminTransfers() {
	if s.metrics != nil {
		s.metrics.IncrementAdminTransfers()
	}
}
