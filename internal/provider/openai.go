package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/petasbytes/ctxassist/internal/assistant"
	"github.com/petasbytes/ctxassist/internal/poll"
)

// DefaultOpenAIModel is the model assistants are created with when none is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

const openaiPrefix = "provider/openai"

// NewOpenAIClient returns a client using OPENAI_API_KEY from the env unless
// opts override it.
func NewOpenAIClient(opts ...option.RequestOption) *openai.Client {
	c := openai.NewClient(opts...)
	return &c
}

// OpenAIAssistants implements assistant.Service for the OpenAI Assistants v2 API.
type OpenAIAssistants struct {
	client *openai.Client
	clock  poll.Clock
	// indexPolicy governs the wait for vector store ingestion.
	indexPolicy poll.Policy
}

// OpenAIOption configures an OpenAIAssistants.
type OpenAIOption func(*OpenAIAssistants)

// WithClock sets the clock used while waiting for document ingestion.
func WithClock(c poll.Clock) OpenAIOption {
	return func(o *OpenAIAssistants) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIndexPolicy sets the poll policy for document ingestion.
func WithIndexPolicy(p poll.Policy) OpenAIOption {
	return func(o *OpenAIAssistants) { o.indexPolicy = p }
}

func NewOpenAIAssistants(client *openai.Client, opts ...OpenAIOption) *OpenAIAssistants {
	o := &OpenAIAssistants{
		client:      client,
		clock:       poll.Real(),
		indexPolicy: poll.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

var _ assistant.Service = (*OpenAIAssistants)(nil)

// namedText is an upload body that carries its own file name and type.
type namedText struct {
	*strings.Reader
	name string
}

func (n namedText) Filename() string    { return n.name }
func (n namedText) ContentType() string { return "text/plain" }

// CreateDocument uploads text as a file, puts it in a new vector store and
// waits until the store is ready for file search.
func (o *OpenAIAssistants) CreateDocument(ctx context.Context, name, text string) (assistant.Document, error) {
	file, err := o.client.Files.New(ctx, openai.FileNewParams{
		File:    namedText{Reader: strings.NewReader(text), name: name},
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return assistant.Document{}, fmt.Errorf("%s: upload file: %w", openaiPrefix, err)
	}

	vs, err := o.client.VectorStores.New(ctx, openai.VectorStoreNewParams{
		Name:    openai.String(name),
		FileIDs: []string{file.ID},
	})
	if err != nil {
		return assistant.Document{}, fmt.Errorf("%s: create vector store: %w", openaiPrefix, err)
	}
	doc := assistant.Document{ID: vs.ID, Name: name, FileID: file.ID, VectorStoreID: vs.ID}

	if ready, err := vectorStoreReady(vs); err != nil || ready {
		return doc, err
	}
	err = poll.Until(ctx, o.clock, o.indexPolicy, func(ctx context.Context) (bool, error) {
		vs, err := o.client.VectorStores.Get(ctx, doc.VectorStoreID)
		if err != nil {
			return false, fmt.Errorf("%s: retrieve vector store: %w", openaiPrefix, err)
		}
		return vectorStoreReady(vs)
	})
	if err != nil {
		return assistant.Document{}, fmt.Errorf("wait for vector store %s: %w", doc.VectorStoreID, err)
	}
	return doc, nil
}

func vectorStoreReady(vs *openai.VectorStore) (bool, error) {
	if vs.FileCounts.Failed > 0 {
		return false, fmt.Errorf("%s: vector store %s: file processing failed", openaiPrefix, vs.ID)
	}
	switch vs.Status {
	case openai.VectorStoreStatusCompleted:
		return true, nil
	case openai.VectorStoreStatusExpired:
		return false, fmt.Errorf("%s: vector store %s expired", openaiPrefix, vs.ID)
	}
	return false, nil
}

// functionParameters re-encodes a reflected schema as the SDK's free-form map.
func functionParameters(s *jsonschema.Schema) (shared.FunctionParameters, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var params shared.FunctionParameters
	if err := json.Unmarshal(b, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func (o *OpenAIAssistants) CreateAssistant(ctx context.Context, cfg assistant.AssistantConfig) (assistant.AssistantID, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	params := openai.BetaAssistantNewParams{
		Model:        shared.ChatModel(model),
		Name:         openai.String(cfg.Name),
		Instructions: openai.String(cfg.Instructions),
	}
	var stores []string
	for _, d := range cfg.Documents {
		if d.VectorStoreID != "" {
			stores = append(stores, d.VectorStoreID)
		}
	}
	if len(stores) > 0 {
		params.Tools = append(params.Tools, openai.AssistantToolUnionParam{OfFileSearch: &openai.FileSearchToolParam{}})
		params.ToolResources = openai.BetaAssistantNewParamsToolResources{
			FileSearch: openai.BetaAssistantNewParamsToolResourcesFileSearch{VectorStoreIDs: stores},
		}
	}
	for _, t := range cfg.Tools {
		fn := shared.FunctionDefinitionParam{Name: t.Name}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		p, err := functionParameters(t.Parameters)
		if err != nil {
			return "", fmt.Errorf("%s: encode parameters for %s: %w", openaiPrefix, t.Name, err)
		}
		fn.Parameters = p
		params.Tools = append(params.Tools, openai.AssistantToolUnionParam{OfFunction: &openai.FunctionToolParam{Function: fn}})
	}
	asst, err := o.client.Beta.Assistants.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s: create assistant: %w", openaiPrefix, err)
	}
	return assistant.AssistantID(asst.ID), nil
}

func (o *OpenAIAssistants) CreateThread(ctx context.Context) (assistant.ThreadID, error) {
	th, err := o.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("%s: create thread: %w", openaiPrefix, err)
	}
	return assistant.ThreadID(th.ID), nil
}

func (o *OpenAIAssistants) AppendMessage(ctx context.Context, thread assistant.ThreadID, role assistant.Role, text string) (assistant.Message, error) {
	msg, err := o.client.Beta.Threads.Messages.New(ctx, string(thread), openai.BetaThreadMessageNewParams{
		Role:    openai.BetaThreadMessageNewParamsRole(role),
		Content: openai.BetaThreadMessageNewParamsContentUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return assistant.Message{}, fmt.Errorf("%s: append message: %w", openaiPrefix, err)
	}
	return fromMessage(msg), nil
}

func (o *OpenAIAssistants) CreateRun(ctx context.Context, thread assistant.ThreadID, params assistant.RunParams) (assistant.Run, error) {
	req := openai.BetaThreadRunNewParams{AssistantID: string(params.AssistantID)}
	if params.AdditionalInstructions != "" {
		req.AdditionalInstructions = openai.String(params.AdditionalInstructions)
	}
	run, err := o.client.Beta.Threads.Runs.New(ctx, string(thread), req)
	if err != nil {
		return assistant.Run{}, fmt.Errorf("%s: create run: %w", openaiPrefix, err)
	}
	return fromRun(run), nil
}

func (o *OpenAIAssistants) RetrieveRun(ctx context.Context, thread assistant.ThreadID, run assistant.RunID) (assistant.Run, error) {
	r, err := o.client.Beta.Threads.Runs.Get(ctx, string(thread), string(run))
	if err != nil {
		return assistant.Run{}, fmt.Errorf("%s: retrieve run: %w", openaiPrefix, err)
	}
	return fromRun(r), nil
}

func (o *OpenAIAssistants) SubmitToolOutputs(ctx context.Context, thread assistant.ThreadID, run assistant.RunID, outputs []assistant.ToolOutput) (assistant.Run, error) {
	wire := make([]openai.BetaThreadRunSubmitToolOutputsParamsToolOutput, 0, len(outputs))
	for _, out := range outputs {
		wire = append(wire, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(out.ToolCallID),
			Output:     openai.String(out.Output),
		})
	}
	r, err := o.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, string(thread), string(run),
		openai.BetaThreadRunSubmitToolOutputsParams{ToolOutputs: wire})
	if err != nil {
		return assistant.Run{}, fmt.Errorf("%s: submit tool outputs: %w", openaiPrefix, err)
	}
	return fromRun(r), nil
}

// CancelRun asks the service to stop run. The returned run is usually
// cancelling; the service finishes it shortly after.
func (o *OpenAIAssistants) CancelRun(ctx context.Context, thread assistant.ThreadID, run assistant.RunID) (assistant.Run, error) {
	r, err := o.client.Beta.Threads.Runs.Cancel(ctx, string(thread), string(run))
	if err != nil {
		return assistant.Run{}, fmt.Errorf("%s: cancel run: %w", openaiPrefix, err)
	}
	return fromRun(r), nil
}

func (o *OpenAIAssistants) ListMessages(ctx context.Context, thread assistant.ThreadID, opts assistant.ListOptions) ([]assistant.Message, error) {
	order := opts.Order
	if order == "" {
		order = assistant.OrderDesc
	}
	params := openai.BetaThreadMessageListParams{Order: openai.BetaThreadMessageListParamsOrder(order)}
	if opts.Limit > 0 {
		params.Limit = openai.Int(int64(opts.Limit))
	}
	if opts.RunID != "" {
		params.RunID = openai.String(string(opts.RunID))
	}
	page, err := o.client.Beta.Threads.Messages.List(ctx, string(thread), params)
	if err != nil {
		return nil, fmt.Errorf("%s: list messages: %w", openaiPrefix, err)
	}
	out := make([]assistant.Message, 0, len(page.Data))
	for i := range page.Data {
		out = append(out, fromMessage(&page.Data[i]))
	}
	return out, nil
}

func fromRun(r *openai.Run) assistant.Run {
	run := assistant.Run{
		ID:          assistant.RunID(r.ID),
		ThreadID:    assistant.ThreadID(r.ThreadID),
		AssistantID: assistant.AssistantID(r.AssistantID),
		Status:      assistant.RunStatus(r.Status),
	}
	for _, c := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
		args := c.Function.Arguments
		if args == "" {
			args = "{}"
		}
		run.ToolCalls = append(run.ToolCalls, assistant.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}
	if le := r.LastError; le.Code != "" || le.Message != "" {
		run.LastError = &assistant.RunError{Code: string(le.Code), Message: le.Message}
	}
	return run
}

// fromMessage joins the text parts of a message. Non-text parts are skipped.
func fromMessage(m *openai.Message) assistant.Message {
	var parts []string
	for _, c := range m.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text.Value)
		}
	}
	return assistant.Message{
		ID:        m.ID,
		ThreadID:  assistant.ThreadID(m.ThreadID),
		RunID:     assistant.RunID(m.RunID),
		Role:      assistant.Role(m.Role),
		Text:      strings.Join(parts, "\n"),
		CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
	}
}
