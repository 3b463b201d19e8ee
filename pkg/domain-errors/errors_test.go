package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("reserve line 2: %w", New(CodeInsufficientStock, "product A"))
		assert.True(t, HasCode(err, CodeInsufficientStock))
		assert.False(t, HasCode(err, CodeInvalidTransition))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		err := errors.New("boom")
		assert.False(t, HasCode(err, CodeInternal))
		assert.Equal(t, CodeInternal, GetCode(err))
		assert.Equal(t, "internal error", Message(err))
	})

	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "lot missing")
		err := Wrap(inner, CodeInvariantViolation, "reservation references unknown lot")
		assert.Equal(t, CodeInvariantViolation, GetCode(err))
		assert.True(t, Is(err, CodeInvariantViolation))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("cause is reachable with errors.Is", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, CodeInternal, "failed to save order")
		require.Error(t, err)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "failed to save order", Message(err))
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestNewf(t *testing.T) {
	err := Newf(CodeDuplicateComplianceResult, "result exists for vendor %s", "v-1")
	assert.Equal(t, "duplicate_compliance_result: result exists for vendor v-1", err.Error())
}
