// Package assistant defines the boundary to a remote assistant service:
// documents, assistants, threads, runs and thread messages.
//
// Implementations live in internal/provider. The run orchestration that drives
// these calls lives in internal/runner.
package assistant

import "context"

// Service is the set of remote operations a prompt cycle depends on.
type Service interface {
	// CreateDocument uploads text so an assistant can answer from it.
	CreateDocument(ctx context.Context, name, text string) (Document, error)
	CreateAssistant(ctx context.Context, cfg AssistantConfig) (AssistantID, error)
	CreateThread(ctx context.Context) (ThreadID, error)
	AppendMessage(ctx context.Context, thread ThreadID, role Role, text string) (Message, error)
	CreateRun(ctx context.Context, thread ThreadID, params RunParams) (Run, error)
	RetrieveRun(ctx context.Context, thread ThreadID, run RunID) (Run, error)
	// SubmitToolOutputs resumes a run in requires_action with one output per
	// pending tool call.
	SubmitToolOutputs(ctx context.Context, thread ThreadID, run RunID, outputs []ToolOutput) (Run, error)
	// CancelRun stops a run that has not reached a terminal status, so the
	// thread accepts new messages again.
	CancelRun(ctx context.Context, thread ThreadID, run RunID) (Run, error)
	// ListMessages returns thread messages, newest first unless opts.Order says otherwise.
	ListMessages(ctx context.Context, thread ThreadID, opts ListOptions) ([]Message, error)
}
