package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	err := NewNotFoundError("customer record", "c1")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "customer record c1 not found", err.Error())

	wrapped := fmt.Errorf("load record: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}
