// Package domain provides typed identifiers so principals and recipient ids cannot be mixed up.
package domain

import (
	"strings"
	"unicode/utf8"

	dErrors "aidreg/pkg/domain-errors"
)

const (
	// MaxPrincipalLength bounds caller identifiers accepted at trust boundaries.
	MaxPrincipalLength = 128
	// MaxRecipientIDLength bounds recipient keys accepted at trust boundaries.
	MaxRecipientIDLength = 64
)

// Principal identifies a calling party (for example an account address).
// Two principals are the same caller iff their values are equal.
type Principal string

// RecipientID is the registry key of a recipient record.
type RecipientID string

// Parse functions - use at trust boundaries (handlers, token claims, config).

func ParsePrincipal(s string) (Principal, error) {
	v, err := parseText(s, "principal", MaxPrincipalLength)
	return Principal(v), err
}

func ParseRecipientID(s string) (RecipientID, error) {
	v, err := parseText(s, "recipient ID", MaxRecipientIDLength)
	return RecipientID(v), err
}

func (p Principal) String() string    { return string(p) }
func (id RecipientID) String() string { return string(id) }

func (p Principal) IsNil() bool    { return p == "" }
func (id RecipientID) IsNil() bool { return id == "" }

// parseText is the shared validation logic for string identifiers.
func parseText(s, label string, maxLen int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if len(s) > maxLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, label+" must be valid UTF-8")
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return "", dErrors.New(dErrors.CodeInvalidInput, label+" contains control characters")
		}
	}
	return s, nil
}
