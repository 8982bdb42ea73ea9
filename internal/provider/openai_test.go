package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/petasbytes/ctxassist/internal/assistant"
	"github.com/petasbytes/ctxassist/internal/poll"
	"github.com/petasbytes/ctxassist/internal/provider"
	"github.com/petasbytes/ctxassist/tools"
)

type recorded struct {
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

// fakeOpenAI answers by "METHOD /path" and records every request.
type fakeOpenAI struct {
	mu       sync.Mutex
	reqs     []recorded
	handlers map[string]func(n int) (int, string)
	counts   map[string]int
}

func newFakeOpenAI(t *testing.T, handlers map[string]func(n int) (int, string)) (*fakeOpenAI, *httptest.Server) {
	t.Helper()
	f := &fakeOpenAI{handlers: handlers, counts: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.reqs = append(f.reqs, recorded{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Clone(), b})
		n := f.counts[key]
		f.counts[key]++
		h, ok := f.handlers[key]
		f.mu.Unlock()
		if !ok {
			http.Error(w, `{"error":{"type":"invalid_request_error","message":"no route"}}`, http.StatusNotFound)
			return
		}
		status, body := h(n)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOpenAI) find(method, path string) *recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.reqs {
		if f.reqs[i].method == method && f.reqs[i].path == path {
			return &f.reqs[i]
		}
	}
	return nil
}

func ok(body string) func(int) (int, string) {
	return func(int) (int, string) { return http.StatusOK, body }
}

func newOpenAI(srv *httptest.Server) *provider.OpenAIAssistants {
	cli := provider.NewOpenAIClient(
		option.WithBaseURL(srv.URL),
		option.WithHTTPClient(srv.Client()),
		option.WithAPIKey("sk-test"),
		option.WithMaxRetries(0),
	)
	return provider.NewOpenAIAssistants(cli,
		provider.WithClock(poll.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))),
	)
}

func TestOpenAI_CreateDocument_UploadsAndWaitsForVectorStore(t *testing.T) {
	f, srv := newFakeOpenAI(t, map[string]func(int) (int, string){
		"POST /files":         ok(`{"id":"file_1","purpose":"assistants"}`),
		"POST /vector_stores": ok(`{"id":"vs_1","status":"in_progress","file_counts":{"failed":0}}`),
		"GET /vector_stores/vs_1": func(n int) (int, string) {
			if n < 2 {
				return http.StatusOK, `{"id":"vs_1","status":"in_progress"}`
			}
			return http.StatusOK, `{"id":"vs_1","status":"completed"}`
		},
	})
	svc := newOpenAI(srv)

	doc, err := svc.CreateDocument(context.Background(), "context.txt", "Store hours: 9-5")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if doc.FileID != "file_1" || doc.VectorStoreID != "vs_1" || doc.Name != "context.txt" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if got := f.counts["GET /vector_stores/vs_1"]; got != 3 {
		t.Fatalf("expected 3 status checks, got %d", got)
	}

	up := f.find(http.MethodPost, "/files")
	if up == nil {
		t.Fatal("file upload not sent")
	}
	if !strings.HasPrefix(up.header.Get("Content-Type"), "multipart/form-data") {
		t.Fatalf("upload content type: %q", up.header.Get("Content-Type"))
	}
	for _, want := range []string{"Store hours: 9-5", "assistants", `filename="context.txt"`} {
		if !strings.Contains(string(up.body), want) {
			t.Fatalf("upload body missing %q: %q", want, up.body)
		}
	}
	if got := up.header.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("authorization: %q", got)
	}

	vs := f.find(http.MethodPost, "/vector_stores")
	var vsReq struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := json.Unmarshal(vs.body, &vsReq); err != nil {
		t.Fatal(err)
	}
	if len(vsReq.FileIDs) != 1 || vsReq.FileIDs[0] != "file_1" {
		t.Fatalf("vector store file ids: %v", vsReq.FileIDs)
	}
}

func TestOpenAI_CreateDocument_FailedIngestion(t *testing.T) {
	_, srv := newFakeOpenAI(t, map[string]func(int) (int, string){
		"POST /files":         ok(`{"id":"file_1"}`),
		"POST /vector_stores": ok(`{"id":"vs_1","status":"completed","file_counts":{"failed":1}}`),
	})
	if _, err := newOpenAI(srv).CreateDocument(context.Background(), "context.txt", "x"); err == nil {
		t.Fatal("expected ingestion failure")
	}
}

func TestOpenAI_CreateAssistant_WiresFileSearchAndFunction(t *testing.T) {
	f, srv := newFakeOpenAI(t, map[string]func(int) (int, string){
		"POST /assistants": ok(`{"id":"asst_1"}`),
	})
	defs := tools.Registry(nil)
	id, err := newOpenAI(srv).CreateAssistant(context.Background(), assistant.AssistantConfig{
		Name:         "Context-Restricted Assistant",
		Instructions: "only the document",
		Model:        "gpt-4o-mini",
		Tools:        tools.FunctionTools(defs),
		Documents:    []assistant.Document{{ID: "vs_1", FileID: "file_1", VectorStoreID: "vs_1"}},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id != "asst_1" {
		t.Fatalf("id: %q", id)
	}

	var req struct {
		Model string `json:"model"`
		Tools []struct {
			Type     string `json:"type"`
			Function *struct {
				Name       string `json:"name"`
				Parameters struct {
					Type       string                     `json:"type"`
					Properties map[string]json.RawMessage `json:"properties"`
					Required   []string                   `json:"required"`
				} `json:"parameters"`
			} `json:"function"`
		} `json:"tools"`
		ToolResources struct {
			FileSearch struct {
				VectorStoreIDs []string `json:"vector_store_ids"`
			} `json:"file_search"`
		} `json:"tool_resources"`
	}
	sent := f.find(http.MethodPost, "/assistants")
	if got := sent.header.Get("OpenAI-Beta"); got != "assistants=v2" {
		t.Fatalf("beta header: %q", got)
	}
	if err := json.Unmarshal(sent.body, &req); err != nil {
		t.Fatal(err)
	}
	if req.Model != "gpt-4o-mini" {
		t.Fatalf("model: %q", req.Model)
	}
	if len(req.Tools) != 2 || req.Tools[0].Type != "file_search" || req.Tools[1].Type != "function" {
		t.Fatalf("tools: %+v", req.Tools)
	}
	fn := req.Tools[1].Function
	if fn.Name != tools.SendEmailName || fn.Parameters.Type != "object" || len(fn.Parameters.Properties) != 3 {
		t.Fatalf("function: %+v", fn)
	}
	if len(fn.Parameters.Required) != 3 {
		t.Fatalf("required: %v", fn.Parameters.Required)
	}
	if ids := req.ToolResources.FileSearch.VectorStoreIDs; len(ids) != 1 || ids[0] != "vs_1" {
		t.Fatalf("vector store ids: %v", ids)
	}
}

func TestOpenAI_RunLifecycle(t *testing.T) {
	f, srv := newFakeOpenAI(t, map[string]func(int) (int, string){
		"POST /threads":                   ok(`{"id":"thread_1"}`),
		"POST /threads/thread_1/messages": ok(`{"id":"msg_1","thread_id":"thread_1","role":"user","created_at":1700000000,"content":[{"type":"text","text":{"value":"hi"}}]}`),
		"POST /threads/thread_1/runs":     ok(`{"id":"run_1","thread_id":"thread_1","assistant_id":"asst_1","status":"queued"}`),
		"GET /threads/thread_1/runs/run_1": ok(`{"id":"run_1","thread_id":"thread_1","status":"requires_action",
			"required_action":{"type":"submit_tool_outputs","submit_tool_outputs":{"tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"send_email","arguments":"{\"to\":\"a@b.c\",\"subject\":\"s\",\"body\":\"b\"}"}}]}}}`),
		"POST /threads/thread_1/runs/run_1/submit_tool_outputs": ok(`{"id":"run_1","thread_id":"thread_1","status":"queued"}`),
	})
	svc := newOpenAI(srv)
	ctx := context.Background()

	th, err := svc.CreateThread(ctx)
	if err != nil || th != "thread_1" {
		t.Fatalf("thread: %q %v", th, err)
	}
	msg, err := svc.AppendMessage(ctx, th, assistant.RoleUser, "hi")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != "hi" || msg.Role != assistant.RoleUser || msg.CreatedAt.Unix() != 1700000000 {
		t.Fatalf("message: %+v", msg)
	}
	run, err := svc.CreateRun(ctx, th, assistant.RunParams{AssistantID: "asst_1", AdditionalInstructions: "Known recipients: a@b.c"})
	if err != nil || run.Status != assistant.RunStatusQueued {
		t.Fatalf("run: %+v %v", run, err)
	}
	var runReq map[string]string
	_ = json.Unmarshal(f.find(http.MethodPost, "/threads/thread_1/runs").body, &runReq)
	if runReq["assistant_id"] != "asst_1" || runReq["additional_instructions"] != "Known recipients: a@b.c" {
		t.Fatalf("run request: %v", runReq)
	}

	run, err = svc.RetrieveRun(ctx, th, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != assistant.RunStatusRequiresAction || len(run.ToolCalls) != 1 {
		t.Fatalf("run: %+v", run)
	}
	call := run.ToolCalls[0]
	var args map[string]string
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		t.Fatalf("arguments not JSON: %v", err)
	}
	if call.ID != "call_1" || call.Name != "send_email" || args["to"] != "a@b.c" {
		t.Fatalf("call: %+v", call)
	}

	run, err = svc.SubmitToolOutputs(ctx, th, run.ID, []assistant.ToolOutput{{ToolCallID: "call_1", Output: "Email sent successfully!"}})
	if err != nil || run.Status != assistant.RunStatusQueued {
		t.Fatalf("submit: %+v %v", run, err)
	}
	var sub struct {
		ToolOutputs []struct {
			ToolCallID string `json:"tool_call_id"`
			Output     string `json:"output"`
		} `json:"tool_outputs"`
	}
	_ = json.Unmarshal(f.find(http.MethodPost, "/threads/thread_1/runs/run_1/submit_tool_outputs").body, &sub)
	if len(sub.ToolOutputs) != 1 || sub.ToolOutputs[0].ToolCallID != "call_1" {
		t.Fatalf("submitted: %+v", sub)
	}
}

func TestOpenAI_RetrieveRun_LastError(t *testing.T) {
	_, srv := newFakeOpenAI(t, map[string]func(int) (int, string){
		"GET /threads/t/runs/r": ok(`{"id":"r","status":"failed","last_error":{"code":"rate_limit_exceeded","message":"slow down"}}`),
	})
	run, err := newOpenAI(srv).RetrieveRun(context.Background(), "t", "r")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != assistant.RunStatusFailed || run.LastError == nil || run.LastError.Code != "rate_limit_exceeded" {
		t.Fatalf("run: %+v", run)
	}
}

func TestOpenAI_ListMessages_QueryAndDecode(t *testing.T) {
	f, srv := newFakeOpenAI(t, map[string]func(int) (int, string){
		"GET /threads/t/messages": ok(`{"data":[
			{"id":"msg_2","role":"assistant","run_id":"run_1","content":[{"type":"text","text":{"value":"part one"}},{"type":"image_file"},{"type":"text","text":{"value":"part two"}}]},
			{"id":"msg_1","role":"user","run_id":null,"content":[{"type":"text","text":{"value":"q"}}]}]}`),
	})
	msgs, err := newOpenAI(srv).ListMessages(context.Background(), "t", assistant.ListOptions{RunID: "run_1", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "part one\npart two" || msgs[0].RunID != "run_1" || msgs[0].Role != assistant.RoleAssistant {
		t.Fatalf("first: %+v", msgs[0])
	}
	if msgs[1].RunID != "" {
		t.Fatalf("null run id should decode empty, got %q", msgs[1].RunID)
	}
	q := f.find(http.MethodGet, "/threads/t/messages").query
	for _, want := range []string{"order=desc", "limit=5", "run_id=run_1"} {
		if !strings.Contains(q, want) {
			t.Fatalf("query %q missing %q", q, want)
		}
	}
}

func TestOpenAI_CancelRun(t *testing.T) {
	f, srv := newFakeOpenAI(t, map[string]func(int) (int, string){
		"POST /threads/t/runs/r/cancel": ok(`{"id":"r","thread_id":"t","status":"cancelling"}`),
	})
	run, err := newOpenAI(srv).CancelRun(context.Background(), "t", "r")
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != "r" || run.Status != assistant.RunStatusCancelling {
		t.Fatalf("run: %+v", run)
	}
	if f.find(http.MethodPost, "/threads/t/runs/r/cancel") == nil {
		t.Fatal("cancel request not sent")
	}
}

func TestOpenAI_APIError(t *testing.T) {
	_, srv := newFakeOpenAI(t, map[string]func(int) (int, string){
		"POST /threads": func(int) (int, string) {
			return http.StatusUnauthorized, `{"error":{"type":"invalid_request_error","code":"invalid_api_key","message":"Incorrect API key"}}`
		},
	})
	_, err := newOpenAI(srv).CreateThread(context.Background())
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *openai.Error, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: %d", apiErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "create thread") {
		t.Fatalf("error should name the operation: %v", err)
	}
}
