package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaEnforcer_Check(t *testing.T) {
	q := NewQuotaEnforcer(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Check("cs-1"))
	}
	err := q.Check("cs-1")
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.Equal(t, 4, q.Current())
	assert.Equal(t, 3, q.MaxSteps())

	var se *StepsExceededError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "cs-1", se.Token)
	assert.Equal(t, 4, se.Steps)
	assert.Equal(t, 3, se.Limit)
}

func TestIsQuotaError_Wrapped(t *testing.T) {
	inner := &StepsExceededError{Token: "cs-1", Steps: 2, Limit: 1}
	err := &Error{Code: ErrCodeStepsExceeded, Message: "too long", Err: inner}

	assert.True(t, IsQuotaError(fmt.Errorf("batch: %w", err)))
	assert.True(t, IsQuotaError(err))
	assert.False(t, IsQuotaError(fmt.Errorf("other")))
}
