package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_ValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{name: "pending_to_running", from: StatusPending, to: StatusRunning},
		{name: "pending_to_failed", from: StatusPending, to: StatusFailed},
		{name: "pending_to_cancelled", from: StatusPending, to: StatusCancelled},
		{name: "pending_to_completed", from: StatusPending, to: StatusCompleted, wantErr: true},
		{name: "running_to_completed", from: StatusRunning, to: StatusCompleted},
		{name: "running_to_timed_out", from: StatusRunning, to: StatusTimedOut},
		{name: "running_to_cancelled", from: StatusRunning, to: StatusCancelled},
		{name: "running_to_failed", from: StatusRunning, to: StatusFailed},
		{name: "running_to_pending", from: StatusRunning, to: StatusPending, wantErr: true},
		{name: "completed_is_final", from: StatusCompleted, to: StatusFailed, wantErr: true},
		{name: "timed_out_is_final", from: StatusTimedOut, to: StatusCompleted, wantErr: true},
		{name: "cancelled_is_final", from: StatusCancelled, to: StatusRunning, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.ValidateTransition(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStatus_Int32RoundTrip(t *testing.T) {
	for _, s := range []Status{
		StatusPending, StatusRunning, StatusCompleted, StatusTimedOut, StatusCancelled, StatusFailed,
	} {
		assert.Equal(t, s, StatusFromInt32(s.Int32()))
		assert.Equal(t, s, ParseStatus(s.WireName()))
	}
	assert.Equal(t, Status(""), StatusFromInt32(42))
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusTimedOut.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}
