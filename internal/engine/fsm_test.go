package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lberrio/flowpilot/pkg/schema"
)

func TestValidRunTransition_HappyPath(t *testing.T) {
	assert.True(t, ValidRunTransition(schema.RunStateInitial, schema.RunStateResourceCheck))
	assert.True(t, ValidRunTransition(schema.RunStateResourceCheck, schema.RunStateRunning))
	assert.True(t, ValidRunTransition(schema.RunStateResourceCheck, schema.RunStateFailed))
	assert.True(t, ValidRunTransition(schema.RunStateRunning, schema.RunStateCompleted))
	assert.True(t, ValidRunTransition(schema.RunStateRunning, schema.RunStateFailed))
	assert.True(t, ValidRunTransition(schema.RunStateRunning, schema.RunStateInterrupted))
}

func TestValidRunTransition_Invalid(t *testing.T) {
	// INTERRUPTED only from RUNNING.
	assert.False(t, ValidRunTransition(schema.RunStateInitial, schema.RunStateInterrupted))
	assert.False(t, ValidRunTransition(schema.RunStateResourceCheck, schema.RunStateInterrupted))

	// Terminal states admit nothing.
	assert.False(t, ValidRunTransition(schema.RunStateCompleted, schema.RunStateRunning))
	assert.False(t, ValidRunTransition(schema.RunStateFailed, schema.RunStateCompleted))
	assert.False(t, ValidRunTransition(schema.RunStateInterrupted, schema.RunStateRunning))

	// No skipping the resource check.
	assert.False(t, ValidRunTransition(schema.RunStateInitial, schema.RunStateRunning))
}

func TestRunStateTerminal(t *testing.T) {
	assert.True(t, schema.RunStateCompleted.Terminal())
	assert.True(t, schema.RunStateFailed.Terminal())
	assert.True(t, schema.RunStateInterrupted.Terminal())
	assert.False(t, schema.RunStateInitial.Terminal())
	assert.False(t, schema.RunStateRunning.Terminal())
}
