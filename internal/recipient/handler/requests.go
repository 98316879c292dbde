package handler

import (
	"strings"

	"aidreg/internal/recipient/models"
	"aidreg/internal/recipient/service"
	id "aidreg/pkg/domain"
	dErrors "aidreg/pkg/domain-errors"
	platformstrings "aidreg/pkg/platform/strings"
)

// HTTP Request DTOs - contain JSON tags for API serialization.
// These are converted to service commands before processing.

type RegisterRequest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Location        string `json:"location"`
	NeedsAssessment string `json:"needs_assessment"`
}

func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.ID = strings.TrimSpace(r.ID)
}

// Validate only checks the request shape. Field limits are enforced by the
// service after the caller is authorized.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return nil
}

func (r *RegisterRequest) toCommand() service.RegisterCommand {
	return service.RegisterCommand{
		ID:              id.RecipientID(r.ID),
		Name:            r.Name,
		Location:        r.Location,
		NeedsAssessment: r.NeedsAssessment,
	}
}

type TransferAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

func (r *TransferAdminRequest) Normalize() {
	if r == nil {
		return
	}
	r.NewAdmin = strings.TrimSpace(r.NewAdmin)
}

func (r *TransferAdminRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return nil
}

type VerificationStatusesRequest struct {
	IDs []string `json:"ids"`
}

func (r *VerificationStatusesRequest) Normalize() {
	if r == nil {
		return
	}
	r.IDs = platformstrings.DedupeAndTrim(r.IDs)
}

func (r *VerificationStatusesRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.IDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "ids is required")
	}
	if len(r.IDs) > models.MaxBatchSize {
		return dErrors.New(dErrors.CodeValidation, "ids must contain 100 entries or less")
	}
	return nil
}

func (r *VerificationStatusesRequest) recipientIDs() []id.RecipientID {
	out := make([]id.RecipientID, len(r.IDs))
	for i, v := range r.IDs {
		out[i] = id.RecipientID(v)
	}
	return out
}
