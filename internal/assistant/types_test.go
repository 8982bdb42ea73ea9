package assistant_test

import (
	"testing"

	"github.com/petasbytes/ctxassist/internal/assistant"
)

func TestRunStatus_PendingAndTerminal(t *testing.T) {
	tests := []struct {
		status   assistant.RunStatus
		pending  bool
		terminal bool
	}{
		{assistant.RunStatusQueued, true, false},
		{assistant.RunStatusInProgress, true, false},
		{assistant.RunStatusCancelling, true, false},
		{assistant.RunStatusRequiresAction, false, false},
		{assistant.RunStatusCompleted, false, true},
		{assistant.RunStatusFailed, false, true},
		{assistant.RunStatusCancelled, false, true},
		{assistant.RunStatusExpired, false, true},
		{assistant.RunStatusIncomplete, false, true},
		{assistant.RunStatus("unknown"), false, false},
	}
	for _, tt := range tests {
		if got := tt.status.Pending(); got != tt.pending {
			t.Errorf("%s.Pending() = %v, want %v", tt.status, got, tt.pending)
		}
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}
