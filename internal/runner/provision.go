package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petasbytes/ctxassist/internal/assistant"
	"github.com/petasbytes/ctxassist/internal/telemetry"
	"github.com/petasbytes/ctxassist/memory"
	"github.com/petasbytes/ctxassist/tools"
)

// ErrEmptyContext is returned when Provision is given blank context text.
var ErrEmptyContext = errors.New("runner: context text is empty")

const (
	// AssistantName is the display name of every provisioned assistant.
	AssistantName = "Context-Restricted Assistant"
	// DocumentName is the file name the context text is uploaded under.
	DocumentName = "context.txt"
	// RefusalText is the reply for questions the document cannot answer.
	RefusalText = "I'm sorry, I can only answer questions based on the provided training content."
)

// Instructions is the fixed policy given to every provisioned assistant.
const Instructions = "You are a helpful assistant. Answer questions ONLY based on the uploaded training content file. " +
	"If the user asks something you cannot answer from the context, respond with '" + RefusalText + "' " +
	"If the user asks you to send an email, use the `send_email` function. " +
	"You must have the recipient's email address to use this function."

// Provision uploads contextText, creates an assistant restricted to it and a
// fresh thread, then points sess at both and clears its transcript. Old
// remote objects are abandoned, not deleted. On error sess is unchanged.
func (r *Runner) Provision(ctx context.Context, sess *memory.Session, contextText string) error {
	if strings.TrimSpace(contextText) == "" {
		return ErrEmptyContext
	}
	ctx = telemetry.WithSessionID(ctx, sess.ID)

	doc, err := r.Service.CreateDocument(ctx, DocumentName, contextText)
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	asstID, err := r.Service.CreateAssistant(ctx, assistant.AssistantConfig{
		Name:         AssistantName,
		Instructions: Instructions,
		Model:        r.Model,
		Tools:        tools.FunctionTools(r.Tools),
		Documents:    []assistant.Document{doc},
	})
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	threadID, err := r.Service.CreateThread(ctx)
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}
	sess.Reset(asstID, threadID)

	r.logger().InfoContext(ctx, "assistant provisioned",
		"session_id", sess.ID,
		"assistant_id", string(asstID),
		"thread_id", string(threadID),
	)
	telemetry.EmitDocumentFeatures(ctx, "provisioned", contextText, map[string]any{
		"assistant_id": string(asstID),
		"thread_id":    string(threadID),
		"document_id":  doc.ID,
		"model":        r.Model,
	})
	return nil
}
