package models

import (
	id "aidreg/pkg/domain"
)

// Domain events emitted after a mutation commits.

type RecipientRegistered struct {
	RecipientID id.RecipientID
	Admin       id.Principal
	Height      uint64
}

type RecipientVerified struct {
	RecipientID  id.RecipientID
	Admin        id.Principal
	Height       uint64
	WasVerified  bool
	LastVerified uint64
}

type AdminTransferred struct {
	PreviousAdmin id.Principal
	NewAdmin      id.Principal
}

type AdminInitialized struct {
	Admin id.Principal
}

// AuthorizationDenied records a mutation attempted by a non-admin caller.
type AuthorizationDenied struct {
	Caller    id.Principal
	Operation string
}
