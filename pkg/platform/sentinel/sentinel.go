package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// - ErrNotFound: entity does not exist in store
// - ErrAlreadyUsed: key is already taken (duplicate recipient id)
// - ErrNotInitialized: a singleton value (the registry admin) was never written
// - ErrUnavailable: backend temporarily unavailable (lock lease not acquired)
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyUsed    = errors.New("already used")
	ErrNotInitialized = errors.New("not initialized")
	ErrUnavailable    = errors.New("unavailable")
)
