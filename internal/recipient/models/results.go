package models

import (
	dErrors "aidreg/pkg/domain-errors"
)

// Result codes returned to callers in the {"err": N} envelope.
const (
	ResultDuplicateID  = 100
	ResultUnauthorized = 403
	ResultNotFound     = 404
)

// ResultCode maps a registry failure to its numeric result code. The second
// return is false for errors that have no result code (validation, infrastructure).
func ResultCode(err error) (int, bool) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeForbidden:
		return ResultUnauthorized, true
	case dErrors.CodeConflict:
		return ResultDuplicateID, true
	case dErrors.CodeNotFound:
		return ResultNotFound, true
	default:
		return 0, false
	}
}
