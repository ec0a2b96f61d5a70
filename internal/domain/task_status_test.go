package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		ok   bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusRunning, StatusPaused, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusError, true},
		{StatusRunning, StatusCancelled, true},
		{StatusPaused, StatusQueued, true},
		{StatusPaused, StatusCancelled, true},
		{StatusError, StatusQueued, true},

		{StatusCompleted, StatusRunning, false},
		{StatusCompleted, StatusQueued, false},
		{StatusCancelled, StatusQueued, false},
		{StatusCancelled, StatusRunning, false},
		{StatusQueued, StatusPaused, false},
		{StatusQueued, StatusCompleted, false},
		{StatusPaused, StatusRunning, false},
		{StatusError, StatusRunning, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTaskStatus_Helpers(t *testing.T) {
	assert.True(t, StatusRunning.IsActive())
	assert.False(t, StatusQueued.IsActive())

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusError.IsTerminal())

	assert.True(t, StatusError.IsFinished())
	assert.True(t, StatusCompleted.IsFinished())
	assert.False(t, StatusPaused.IsFinished())

	assert.True(t, StatusPaused.IsValid())
	assert.False(t, TaskStatus("downloading").IsValid())
}
