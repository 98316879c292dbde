package handler

import (
	"time"

	"aidreg/internal/recipient/models"
)

// OKResponse and ErrResponse form the result envelope of registry calls.
type OKResponse struct {
	OK any `json:"ok"`
}

type ErrResponse struct {
	Err int `json:"err"`
}

type RecipientResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Location        string    `json:"location"`
	NeedsAssessment string    `json:"needs_assessment"`
	Verified        bool      `json:"verified"`
	LastVerified    uint64    `json:"last_verified"`
	RegisteredAt    time.Time `json:"registered_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RecipientDetailsResponse carries a null recipient when the id is unknown.
type RecipientDetailsResponse struct {
	Recipient *RecipientResponse `json:"recipient"`
}

type RecipientListResponse struct {
	Recipients []*RecipientResponse `json:"recipients"`
	NextAfter  string               `json:"next_after,omitempty"`
}

type VerificationStatusesResponse struct {
	Results map[string]any `json:"results"`
}

type AdminResponse struct {
	Admin string `json:"admin"`
}

func toRecipientResponse(r *models.Recipient) *RecipientResponse {
	if r == nil {
		return nil
	}
	return &RecipientResponse{
		ID:              r.ID.String(),
		Name:            r.Name,
		Location:        r.Location,
		NeedsAssessment: r.NeedsAssessment,
		Verified:        r.Verified,
		LastVerified:    r.LastVerified,
		RegisteredAt:    r.RegisteredAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toRecipientListResponse(page *models.RecipientPage) *RecipientListResponse {
	out := &RecipientListResponse{
		Recipients: make([]*RecipientResponse, 0, len(page.Recipients)),
		NextAfter:  page.NextAfter.String(),
	}
	for _, r := range page.Recipients {
		out.Recipients = append(out.Recipients, toRecipientResponse(r))
	}
	return out
}
