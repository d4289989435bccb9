package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(KindValidation, "duration out of range", nil)

	assert.Equal(t, KindValidation, err.Kind)
	assert.Equal(t, "duration out of range", err.Message)
	assert.Nil(t, err.Cause)
	assert.Equal(t, "VALIDATION_ERROR: duration out of range", err.Error())
}

func TestErrorWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage("failed to save session", cause)

	assert.Contains(t, err.Error(), "STORAGE_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFound("session not found"))

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindValidation))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, Is(nil, KindStorage))
}
