package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"aidreg/internal/recipient/models"
	"aidreg/internal/recipient/service"
	id "aidreg/pkg/domain"
	dErrors "aidreg/pkg/domain-errors"
	"aidreg/pkg/platform/httputil"
	"aidreg/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
// The caller principal comes from the authenticated request context.
type Service interface {
	Register(ctx context.Context, caller id.Principal, cmd service.RegisterCommand) error
	Verify(ctx context.Context, caller id.Principal, recipientID id.RecipientID) error
	IsVerified(ctx context.Context, recipientID id.RecipientID) (bool, error)
	GetDetails(ctx context.Context, recipientID id.RecipientID) (*models.Recipient, bool, error)
	TransferAdmin(ctx context.Context, caller, newAdmin id.Principal) error
	Admin(ctx context.Context) (id.Principal, error)
	List(ctx context.Context, q models.ListQuery) (*models.RecipientPage, error)
	VerificationStatuses(ctx context.Context, ids []id.RecipientID) (map[id.RecipientID]bool, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/recipients", h.HandleRegister)
	r.Get("/recipients", h.HandleList)
	r.Post("/recipients/verified", h.HandleVerificationStatuses)
	r.Get("/recipients/{id}", h.HandleGetDetails)
	r.Get("/recipients/{id}/verified", h.HandleIsVerified)
	r.Post("/recipients/{id}/verify", h.HandleVerify)
	r.Post("/admin/transfer", h.HandleTransferAdmin)
	r.Get("/admin", h.HandleReadAdmin)
}

// HandleRegister registers a recipient on behalf of the calling admin.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Register(ctx, requestcontext.Caller(ctx), req.toCommand()); err != nil {
		h.writeResultError(ctx, w, "register recipient failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, OKResponse{OK: true})
}

// HandleVerify marks a recipient verified.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipientID := recipientIDParam(r)

	if err := h.service.Verify(ctx, requestcontext.Caller(ctx), recipientID); err != nil {
		h.writeResultError(ctx, w, "verify recipient failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}

// HandleIsVerified reports a recipient's verification flag.
func (h *Handler) HandleIsVerified(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipientID := recipientIDParam(r)

	verified, err := h.service.IsVerified(ctx, recipientID)
	if err != nil {
		h.writeResultError(ctx, w, "is verified failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OKResponse{OK: verified})
}

// HandleGetDetails returns a recipient record, or a null recipient when absent.
func (h *Handler) HandleGetDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipientID := recipientIDParam(r)

	rec, found, err := h.service.GetDetails(ctx, recipientID)
	if err != nil {
		h.writeResultError(ctx, w, "get recipient failed", err)
		return
	}
	if !found {
		httputil.WriteJSON(w, http.StatusOK, RecipientDetailsResponse{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RecipientDetailsResponse{Recipient: toRecipientResponse(rec)})
}

// HandleList returns a page of recipients. Query parameters: after, limit, verified.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseListQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.service.List(ctx, q)
	if err != nil {
		h.writeResultError(ctx, w, "list recipients failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecipientListResponse(page))
}

// HandleVerificationStatuses answers isVerified for a batch of ids.
func (h *Handler) HandleVerificationStatuses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerificationStatusesRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	statuses, err := h.service.VerificationStatuses(ctx, req.recipientIDs())
	if err != nil {
		h.writeResultError(ctx, w, "verification statuses failed", err)
		return
	}
	results := make(map[string]any, len(req.IDs))
	for _, v := range req.IDs {
		if verified, known := statuses[id.RecipientID(v)]; known {
			results[v] = OKResponse{OK: verified}
		} else {
			results[v] = ErrResponse{Err: models.ResultNotFound}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, VerificationStatusesResponse{Results: results})
}

// HandleTransferAdmin hands the admin role to another principal.
func (h *Handler) HandleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[TransferAdminRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.TransferAdmin(ctx, requestcontext.Caller(ctx), id.Principal(req.NewAdmin)); err != nil {
		h.writeResultError(ctx, w, "transfer admin failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OKResponse{OK: true})
}

// HandleReadAdmin returns the current admin principal.
func (h *Handler) HandleReadAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	admin, err := h.service.Admin(ctx)
	if err != nil {
		h.writeResultError(ctx, w, "read admin failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AdminResponse{Admin: admin.String()})
}

// writeResultError renders registry result codes as {"err": N} and anything
// else through the platform error envelope.
func (h *Handler) writeResultError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if code, ok := models.ResultCode(err); ok {
		h.logger.InfoContext(ctx, msg, "result_code", code, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteJSON(w, httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)), ErrResponse{Err: code})
		return
	}
	h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	httputil.WriteError(w, err)
}

// recipientIDParam passes the path id through untouched. The service treats
// ids that could never be stored as absent.
func recipientIDParam(r *http.Request) id.RecipientID {
	return id.RecipientID(chi.URLParam(r, "id"))
}

func parseListQuery(r *http.Request) (models.ListQuery, error) {
	values := r.URL.Query()
	var q models.ListQuery
	if after := values.Get("after"); after != "" {
		recipientID, err := id.ParseRecipientID(after)
		if err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "invalid after cursor")
		}
		q.After = recipientID
	}
	if limit := values.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > models.MaxPageSize {
			return q, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 200")
		}
		q.Limit = n
	}
	if verified := values.Get("verified"); verified != "" {
		b, err := strconv.ParseBool(verified)
		if err != nil {
			return q, dErrors.New(dErrors.CodeBadRequest, "verified must be true or false")
		}
		q.Verified = &b
	}
	return q, nil
}
