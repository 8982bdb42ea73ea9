package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/petasbytes/ctxassist/internal/assistant"
	"github.com/petasbytes/ctxassist/internal/telemetry"
	"github.com/petasbytes/ctxassist/internal/windowing"
)

// ErrNotFound is returned for unknown assistant, thread, run or document IDs.
var ErrNotFound = errors.New("provider: not found")

// AnthropicAssistants emulates the assistant/thread/run lifecycle over the
// Anthropic Messages API. State lives in process and is lost on restart.
//
// A run does its remote work lazily: the first RetrieveRun after CreateRun or
// SubmitToolOutputs sends one Messages request and moves the run to either
// requires_action or completed.
type AnthropicAssistants struct {
	client        *anthropic.Client
	maxTokens     int64
	historyBudget int
	now           func() time.Time

	mu         sync.Mutex
	documents  map[string]emuDocument
	assistants map[assistant.AssistantID]*emuAssistant
	threads    map[assistant.ThreadID]*emuThread
}

type emuDocument struct {
	name string
	text string
}

type emuAssistant struct {
	cfg   assistant.AssistantConfig
	model anthropic.Model
	tools []anthropic.ToolUnionParam
}

type emuThread struct {
	mu       sync.Mutex
	id       assistant.ThreadID
	messages []assistant.Message
	history  []anthropic.MessageParam
	runs     map[assistant.RunID]*emuRun
}

type emuRun struct {
	run    assistant.Run
	params assistant.RunParams
}

// AnthropicOption configures AnthropicAssistants.
type AnthropicOption func(*AnthropicAssistants)

// WithMaxTokens caps each reply. Values below 1 keep the default of 1024.
func WithMaxTokens(n int64) AnthropicOption {
	return func(a *AnthropicAssistants) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithHistoryBudget trims the thread history sent with each request to an
// estimated budget, see windowing.Window. Zero sends the full history.
func WithHistoryBudget(n int) AnthropicOption {
	return func(a *AnthropicAssistants) { a.historyBudget = n }
}

// NewAnthropicAssistants returns an emulated service using client.
func NewAnthropicAssistants(client *anthropic.Client, opts ...AnthropicOption) *AnthropicAssistants {
	a := &AnthropicAssistants{
		client:     client,
		maxTokens:  1024,
		now:        func() time.Time { return time.Now().UTC() },
		documents:  make(map[string]emuDocument),
		assistants: make(map[assistant.AssistantID]*emuAssistant),
		threads:    make(map[assistant.ThreadID]*emuThread),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ assistant.Service = (*AnthropicAssistants)(nil)

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (a *AnthropicAssistants) CreateDocument(ctx context.Context, name, text string) (assistant.Document, error) {
	id := newID("file")
	a.mu.Lock()
	a.documents[id] = emuDocument{name: name, text: text}
	a.mu.Unlock()
	return assistant.Document{ID: id, Name: name, FileID: id}, nil
}

func (a *AnthropicAssistants) CreateAssistant(ctx context.Context, cfg assistant.AssistantConfig) (assistant.AssistantID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range cfg.Documents {
		if _, ok := a.documents[d.ID]; !ok {
			return "", fmt.Errorf("create assistant: document %s: %w", d.ID, ErrNotFound)
		}
	}
	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = DefaultModel
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		schema := anthropic.ToolInputSchemaParam{}
		if t.Parameters != nil {
			schema.Properties = t.Parameters.Properties
			schema.Required = t.Parameters.Required
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}})
	}
	id := assistant.AssistantID(newID("asst"))
	a.assistants[id] = &emuAssistant{cfg: cfg, model: model, tools: tools}
	return id, nil
}

func (a *AnthropicAssistants) CreateThread(ctx context.Context) (assistant.ThreadID, error) {
	id := assistant.ThreadID(newID("thread"))
	a.mu.Lock()
	a.threads[id] = &emuThread{id: id, runs: make(map[assistant.RunID]*emuRun)}
	a.mu.Unlock()
	return id, nil
}

func (a *AnthropicAssistants) thread(id assistant.ThreadID) (*emuThread, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	th, ok := a.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	return th, nil
}

func (a *AnthropicAssistants) AppendMessage(ctx context.Context, thread assistant.ThreadID, role assistant.Role, text string) (assistant.Message, error) {
	th, err := a.thread(thread)
	if err != nil {
		return assistant.Message{}, fmt.Errorf("append message: %w", err)
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	msg := th.record("", role, text, a.now())
	if role == assistant.RoleAssistant {
		th.history = append(th.history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
	} else {
		th.history = append(th.history, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
	}
	return msg, nil
}

// record appends a visible message. Caller holds th.mu.
func (th *emuThread) record(run assistant.RunID, role assistant.Role, text string, at time.Time) assistant.Message {
	msg := assistant.Message{
		ID:        newID("msg"),
		ThreadID:  th.id,
		RunID:     run,
		Role:      role,
		Text:      text,
		CreatedAt: at,
	}
	th.messages = append(th.messages, msg)
	return msg
}

func (a *AnthropicAssistants) CreateRun(ctx context.Context, thread assistant.ThreadID, params assistant.RunParams) (assistant.Run, error) {
	a.mu.Lock()
	_, ok := a.assistants[params.AssistantID]
	a.mu.Unlock()
	if !ok {
		return assistant.Run{}, fmt.Errorf("create run: assistant %s: %w", params.AssistantID, ErrNotFound)
	}
	th, err := a.thread(thread)
	if err != nil {
		return assistant.Run{}, fmt.Errorf("create run: %w", err)
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	r := &emuRun{
		run: assistant.Run{
			ID:          assistant.RunID(newID("run")),
			ThreadID:    thread,
			AssistantID: params.AssistantID,
			Status:      assistant.RunStatusQueued,
		},
		params: params,
	}
	th.runs[r.run.ID] = r
	return r.run, nil
}

func (a *AnthropicAssistants) RetrieveRun(ctx context.Context, thread assistant.ThreadID, run assistant.RunID) (assistant.Run, error) {
	th, err := a.thread(thread)
	if err != nil {
		return assistant.Run{}, fmt.Errorf("retrieve run: %w", err)
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	r, ok := th.runs[run]
	if !ok {
		return assistant.Run{}, fmt.Errorf("retrieve run %s: %w", run, ErrNotFound)
	}
	if r.run.Status == assistant.RunStatusQueued {
		if err := a.step(ctx, th, r); err != nil {
			return assistant.Run{}, fmt.Errorf("retrieve run %s: %w", run, err)
		}
	}
	return r.run, nil
}

// step sends one Messages request for r. Caller holds th.mu.
func (a *AnthropicAssistants) step(ctx context.Context, th *emuThread, r *emuRun) error {
	a.mu.Lock()
	asst := a.assistants[r.params.AssistantID]
	system := a.systemPrompt(asst.cfg, r.params.AdditionalInstructions)
	a.mu.Unlock()

	history, st := windowing.Window(th.history, a.historyBudget, windowing.RuneCounter{})
	if len(history) == 0 && len(th.history) > 0 {
		r.run.Status = assistant.RunStatusFailed
		r.run.LastError = &assistant.RunError{
			Code:    "context_length_exceeded",
			Message: fmt.Sprintf("latest turn does not fit the history budget of %d", a.historyBudget),
		}
		return nil
	}
	if st.Dropped > 0 {
		telemetry.EmitContext(ctx, "history_window", map[string]any{
			"run_id":   string(r.run.ID),
			"budget":   st.Budget,
			"total":    st.Total,
			"included": st.Included,
			"dropped":  st.Dropped,
		})
	}

	params := anthropic.MessageNewParams{
		Model:     asst.model,
		MaxTokens: a.maxTokens,
		Messages:  history,
		System:    []anthropic.TextBlockParam{{Text: system}},
	}
	if len(asst.tools) > 0 {
		params.Tools = asst.tools
	}
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.run.Status = assistant.RunStatusFailed
		r.run.LastError = &assistant.RunError{Code: "server_error", Message: err.Error()}
		return nil
	}
	th.history = append(th.history, msg.ToParam())

	var text []string
	var calls []assistant.ToolCall
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text = append(text, v.Text)
		case anthropic.ToolUseBlock:
			input := json.RawMessage(v.JSON.Input.Raw())
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			calls = append(calls, assistant.ToolCall{ID: v.ID, Name: v.Name, Arguments: input})
		}
	}

	switch {
	case len(calls) > 0:
		r.run.Status = assistant.RunStatusRequiresAction
		r.run.ToolCalls = calls
	case msg.StopReason == anthropic.StopReasonMaxTokens:
		r.run.Status = assistant.RunStatusIncomplete
		r.run.LastError = &assistant.RunError{Code: "max_tokens", Message: "reply truncated at token limit"}
	default:
		r.run.Status = assistant.RunStatusCompleted
		r.run.ToolCalls = nil
		th.record(r.run.ID, assistant.RoleAssistant, strings.Join(text, "\n"), a.now())
	}
	return nil
}

// systemPrompt places the assistant's documents after its instructions.
// Caller holds a.mu.
func (a *AnthropicAssistants) systemPrompt(cfg assistant.AssistantConfig, extra string) string {
	var b strings.Builder
	b.WriteString(cfg.Instructions)
	for _, d := range cfg.Documents {
		doc := a.documents[d.ID]
		fmt.Fprintf(&b, "\n\n<document name=%q>\n%s\n</document>", doc.name, doc.text)
	}
	if extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}

func (a *AnthropicAssistants) SubmitToolOutputs(ctx context.Context, thread assistant.ThreadID, run assistant.RunID, outputs []assistant.ToolOutput) (assistant.Run, error) {
	th, err := a.thread(thread)
	if err != nil {
		return assistant.Run{}, fmt.Errorf("submit tool outputs: %w", err)
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	r, ok := th.runs[run]
	if !ok {
		return assistant.Run{}, fmt.Errorf("submit tool outputs: run %s: %w", run, ErrNotFound)
	}
	if r.run.Status != assistant.RunStatusRequiresAction {
		return assistant.Run{}, fmt.Errorf("submit tool outputs: run %s is %s, not %s", run, r.run.Status, assistant.RunStatusRequiresAction)
	}
	byID := make(map[string]string, len(outputs))
	for _, out := range outputs {
		byID[out.ToolCallID] = out.Output
	}
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(r.run.ToolCalls))
	for _, call := range r.run.ToolCalls {
		out, ok := byID[call.ID]
		if !ok {
			return assistant.Run{}, fmt.Errorf("submit tool outputs: missing output for tool call %s", call.ID)
		}
		blocks = append(blocks, anthropic.NewToolResultBlock(call.ID, out, false))
	}
	th.history = append(th.history, anthropic.NewUserMessage(blocks...))
	r.run.Status = assistant.RunStatusQueued
	r.run.ToolCalls = nil
	return r.run, nil
}

// cancelledToolResult answers tool calls left open by a cancelled run.
const cancelledToolResult = "Run cancelled before this tool call was answered."

// CancelRun marks a non-terminal run cancelled. Tool calls still waiting for
// outputs get error results, so the history never ends on an unanswered
// tool_use turn.
func (a *AnthropicAssistants) CancelRun(ctx context.Context, thread assistant.ThreadID, run assistant.RunID) (assistant.Run, error) {
	th, err := a.thread(thread)
	if err != nil {
		return assistant.Run{}, fmt.Errorf("cancel run: %w", err)
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	r, ok := th.runs[run]
	if !ok {
		return assistant.Run{}, fmt.Errorf("cancel run: run %s: %w", run, ErrNotFound)
	}
	if r.run.Status.Terminal() {
		return assistant.Run{}, fmt.Errorf("cancel run: run %s is already %s", run, r.run.Status)
	}
	if r.run.Status == assistant.RunStatusRequiresAction && len(r.run.ToolCalls) > 0 {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(r.run.ToolCalls))
		for _, call := range r.run.ToolCalls {
			blocks = append(blocks, anthropic.NewToolResultBlock(call.ID, cancelledToolResult, true))
		}
		th.history = append(th.history, anthropic.NewUserMessage(blocks...))
	}
	r.run.Status = assistant.RunStatusCancelled
	r.run.ToolCalls = nil
	return r.run, nil
}

func (a *AnthropicAssistants) ListMessages(ctx context.Context, thread assistant.ThreadID, opts assistant.ListOptions) ([]assistant.Message, error) {
	th, err := a.thread(thread)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	th.mu.Lock()
	defer th.mu.Unlock()
	out := make([]assistant.Message, 0, len(th.messages))
	for _, m := range th.messages {
		if opts.RunID != "" && m.RunID != opts.RunID {
			continue
		}
		out = append(out, m)
	}
	if opts.Order != assistant.OrderAsc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
