package assistant

import (
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"
)

// AssistantID identifies a remote assistant configuration. A new one is
// created for every context update; old ones are superseded, never mutated.
type AssistantID string

// ThreadID identifies a remote conversation thread.
type ThreadID string

// RunID identifies one in-flight request/response exchange on a thread.
type RunID string

// Role is the author of a thread message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RunStatus mirrors the remote run lifecycle.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Pending reports whether the run is still being worked on by the service
// and must be polled again.
func (s RunStatus) Pending() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusCancelling:
		return true
	}
	return false
}

// Terminal reports whether the run has stopped for good.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete:
		return true
	}
	return false
}

// Document references an uploaded context text.
type Document struct {
	ID   string
	Name string
	// FileID and VectorStoreID are set by services that index documents
	// for file search. Both are empty otherwise.
	FileID        string
	VectorStoreID string
}

// FunctionTool declares a callable function to the service.
type FunctionTool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// AssistantConfig is everything needed to create an assistant.
type AssistantConfig struct {
	Name         string
	Instructions string
	Model        string
	Tools        []FunctionTool
	Documents    []Document
}

// RunParams starts a run on a thread.
type RunParams struct {
	AssistantID AssistantID
	// AdditionalInstructions are appended to the assistant's instructions
	// for this run only.
	AdditionalInstructions string
}

// ToolCall is a function invocation requested by a run in requires_action.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolOutput answers exactly one ToolCall.
type ToolOutput struct {
	ToolCallID string
	Output     string
}

// RunError is the service's explanation for a failed run.
type RunError struct {
	Code    string
	Message string
}

// Run is a snapshot of a remote run.
type Run struct {
	ID          RunID
	ThreadID    ThreadID
	AssistantID AssistantID
	Status      RunStatus
	ToolCalls   []ToolCall
	LastError   *RunError
}

// Message is one entry of a remote thread.
type Message struct {
	ID        string
	ThreadID  ThreadID
	RunID     RunID
	Role      Role
	Text      string
	CreatedAt time.Time
}

// Order is a list ordering.
type Order string

const (
	OrderDesc Order = "desc"
	OrderAsc  Order = "asc"
)

// ListOptions narrows ListMessages.
type ListOptions struct {
	// RunID restricts results to messages produced by one run when set.
	RunID RunID
	Order Order
	Limit int
}
