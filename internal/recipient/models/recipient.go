package models

import (
	"time"

	id "aidreg/pkg/domain"
	dErrors "aidreg/pkg/domain-errors"
)

// Field limits for recipient records.
const (
	MaxNameLength            = 128
	MaxLocationLength        = 128
	MaxNeedsAssessmentLength = 1024
)

// Recipient is a registered aid recipient.
//
// Invariants:
//   - ID is unique and never reassigned; records are never removed
//   - Verified only moves false to true
//   - LastVerified is stamped at registration and on every verification and never decreases
type Recipient struct {
	ID              id.RecipientID `json:"id"`
	Name            string         `json:"name"`
	Location        string         `json:"location"`
	NeedsAssessment string         `json:"needs_assessment"`
	Verified        bool           `json:"verified"`
	LastVerified    uint64         `json:"last_verified"`
	RegisteredAt    time.Time      `json:"registered_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewRecipient builds an unverified record stamped at height.
func NewRecipient(recipientID id.RecipientID, name, location, needsAssessment string, height uint64, now time.Time) (*Recipient, error) {
	if recipientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "recipient id cannot be empty")
	}
	if len(name) > MaxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name must be 128 characters or less")
	}
	if len(location) > MaxLocationLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "location must be 128 characters or less")
	}
	if len(needsAssessment) > MaxNeedsAssessmentLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "needs assessment must be 1024 characters or less")
	}
	return &Recipient{
		ID:              recipientID,
		Name:            name,
		Location:        location,
		NeedsAssessment: needsAssessment,
		Verified:        false,
		LastVerified:    height,
		RegisteredAt:    now,
		UpdatedAt:       now,
	}, nil
}

// Verify marks the record verified and re-stamps LastVerified. A height lower
// than the stored one keeps the stored value. Verifying twice is allowed.
func (r *Recipient) Verify(height uint64, now time.Time) {
	r.Verified = true
	r.LastVerified = max(r.LastVerified, height)
	r.UpdatedAt = now
}

// Clone returns an independent copy.
func (r *Recipient) Clone() *Recipient {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ListQuery selects a page of recipients ordered by id.
type ListQuery struct {
	// After is an exclusive lower bound on id.
	After    id.RecipientID
	Limit    int
	Verified *bool
}

// Page size bounds for List.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Normalized clamps Limit into [1, MaxPageSize], defaulting to DefaultPageSize.
func (q ListQuery) Normalized() ListQuery {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultPageSize
	case q.Limit > MaxPageSize:
		q.Limit = MaxPageSize
	}
	return q
}

// Matches reports whether r passes the query's filters, ignoring paging.
func (q ListQuery) Matches(r *Recipient) bool {
	return q.Verified == nil || r.Verified == *q.Verified
}

// RecipientPage is one page of a listing. NextAfter is empty on the last page.
type RecipientPage struct {
	Recipients []*Recipient
	NextAfter  id.RecipientID
}

// MaxBatchSize bounds VerificationStatuses lookups.
const MaxBatchSize = 100
