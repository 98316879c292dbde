package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := New(CodeNotFound, "recipient not found")
	wrapped := Wrap(inner, CodeInternal, "lookup failed")

	assert.True(t, HasCode(wrapped, CodeNotFound))
	assert.Equal(t, "lookup failed", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
}

func TestWrapAssignsCodeToPlainErrors(t *testing.T) {
	wrapped := Wrap(errors.New("connection refused"), CodeInternal, "store unavailable")

	assert.True(t, HasCode(wrapped, CodeInternal))
	assert.Equal(t, "connection refused", errors.Unwrap(wrapped).Error())
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("context: %w", New(CodeForbidden, "caller is not the registry admin"))

	assert.ErrorIs(t, err, &Error{Code: CodeForbidden})
	assert.NotErrorIs(t, err, &Error{Code: CodeConflict})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConflict, CodeOf(New(CodeConflict, "dup")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestErrorFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeTimeout}
	assert.Equal(t, "timeout", err.Error())
}
