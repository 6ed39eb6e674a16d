package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	base := errors.New("boom")
	wrapped := fmt.Errorf("outer: %w", New(CircuitOpen, "orchestrator.Run", base))

	assert.True(t, Is(wrapped, CircuitOpen))
	assert.False(t, Is(wrapped, Input))
	assert.False(t, Is(base, CircuitOpen))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := New(AgentHard, "classifier.Run", base)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "agent_hard_failure")
}
