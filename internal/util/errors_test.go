package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrorsMatchThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("adding entry: %w", ErrDuplicateEntry)

	assert.ErrorIs(t, wrapped, ErrDuplicateEntry)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("bad request")
	err.AddField("ipAddress", "must be a routable address")

	assert.Contains(t, err.Error(), "bad request")
	assert.Contains(t, err.Error(), "ipAddress")
}

func TestValidationErrorIs(t *testing.T) {
	err := NewValidationError("bad request")
	wrapped := fmt.Errorf("handler: %w", err)

	assert.True(t, errors.Is(wrapped, &ValidationError{}))
	assert.False(t, errors.Is(wrapped, ErrSystem))
}

func TestValidationErrorAddFieldOnZeroValue(t *testing.T) {
	var err ValidationError
	err.AddField("port", "out of range")

	assert.Equal(t, "out of range", err.Fields["port"])
}
