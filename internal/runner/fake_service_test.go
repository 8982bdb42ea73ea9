package runner_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petasbytes/ctxassist/internal/assistant"
)

// fakeService replays scripted runs. CreateRun, RetrieveRun and
// SubmitToolOutputs each consume the next entry of runs.
type fakeService struct {
	mu sync.Mutex

	runs    []assistant.Run
	replies []assistant.Message // returned by ListMessages, newest first
	errOn   map[string]error

	calls      []string
	appended   []assistant.Message
	runParams  []assistant.RunParams
	submitted  [][]assistant.ToolOutput
	cancelled  []assistant.RunID
	assistants []assistant.AssistantConfig
	documents  []string
	retrieves  int
	next       int
	seq        int
}

func (f *fakeService) record(op string) error {
	f.calls = append(f.calls, op)
	if err, ok := f.errOn[op]; ok {
		return err
	}
	return nil
}

func (f *fakeService) id(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *fakeService) pop() (assistant.Run, error) {
	if f.next >= len(f.runs) {
		return assistant.Run{}, fmt.Errorf("fake: run script exhausted after %d entries", len(f.runs))
	}
	r := f.runs[f.next]
	f.next++
	if r.ID == "" {
		r.ID = "run_1"
	}
	return r, nil
}

func (f *fakeService) CreateDocument(ctx context.Context, name, text string) (assistant.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateDocument"); err != nil {
		return assistant.Document{}, err
	}
	f.documents = append(f.documents, text)
	return assistant.Document{ID: f.id("file"), Name: name}, nil
}

func (f *fakeService) CreateAssistant(ctx context.Context, cfg assistant.AssistantConfig) (assistant.AssistantID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateAssistant"); err != nil {
		return "", err
	}
	f.assistants = append(f.assistants, cfg)
	return assistant.AssistantID(f.id("asst")), nil
}

func (f *fakeService) CreateThread(ctx context.Context) (assistant.ThreadID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateThread"); err != nil {
		return "", err
	}
	return assistant.ThreadID(f.id("thread")), nil
}

func (f *fakeService) AppendMessage(ctx context.Context, thread assistant.ThreadID, role assistant.Role, text string) (assistant.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AppendMessage"); err != nil {
		return assistant.Message{}, err
	}
	m := assistant.Message{ID: f.id("msg"), ThreadID: thread, Role: role, Text: text, CreatedAt: time.Now()}
	f.appended = append(f.appended, m)
	return m, nil
}

func (f *fakeService) CreateRun(ctx context.Context, thread assistant.ThreadID, params assistant.RunParams) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRun"); err != nil {
		return assistant.Run{}, err
	}
	f.runParams = append(f.runParams, params)
	return f.pop()
}

func (f *fakeService) RetrieveRun(ctx context.Context, thread assistant.ThreadID, run assistant.RunID) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetrieveRun"); err != nil {
		return assistant.Run{}, err
	}
	f.retrieves++
	return f.pop()
}

func (f *fakeService) SubmitToolOutputs(ctx context.Context, thread assistant.ThreadID, run assistant.RunID, outputs []assistant.ToolOutput) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SubmitToolOutputs"); err != nil {
		return assistant.Run{}, err
	}
	f.submitted = append(f.submitted, outputs)
	return f.pop()
}

// CancelRun does not consume the run script.
func (f *fakeService) CancelRun(ctx context.Context, thread assistant.ThreadID, run assistant.RunID) (assistant.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CancelRun"); err != nil {
		return assistant.Run{}, err
	}
	f.cancelled = append(f.cancelled, run)
	return assistant.Run{ID: run, ThreadID: thread, Status: assistant.RunStatusCancelled}, nil
}

func (f *fakeService) ListMessages(ctx context.Context, thread assistant.ThreadID, opts assistant.ListOptions) ([]assistant.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListMessages"); err != nil {
		return nil, err
	}
	out := make([]assistant.Message, len(f.replies))
	copy(out, f.replies)
	return out, nil
}

func status(s assistant.RunStatus) assistant.Run {
	return assistant.Run{Status: s}
}

func action(calls ...assistant.ToolCall) assistant.Run {
	return assistant.Run{Status: assistant.RunStatusRequiresAction, ToolCalls: calls}
}

func reply(text string) assistant.Message {
	return assistant.Message{ID: "msg_reply", RunID: "run_1", Role: assistant.RoleAssistant, Text: text}
}
