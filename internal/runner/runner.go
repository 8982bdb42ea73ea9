package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/petasbytes/ctxassist/internal/assistant"
	"github.com/petasbytes/ctxassist/internal/poll"
	"github.com/petasbytes/ctxassist/internal/telemetry"
	"github.com/petasbytes/ctxassist/memory"
	"github.com/petasbytes/ctxassist/tools"
)

var (
	// ErrNotProvisioned is returned by Ask before Provision has succeeded.
	ErrNotProvisioned = errors.New("runner: no assistant provisioned; provide context first")
	// ErrRunFailed is wrapped by RunError.
	ErrRunFailed = errors.New("runner: run did not complete")
	// ErrToolRoundsExceeded is returned when a run keeps requesting action
	// after MaxToolRounds submissions.
	ErrToolRoundsExceeded = errors.New("runner: tool call rounds exceeded")
	// ErrNoReply is returned when a completed run left no assistant message.
	ErrNoReply = errors.New("runner: completed run has no assistant reply")
)

// DefaultMaxToolRounds bounds tool-output submissions per prompt.
const DefaultMaxToolRounds = 3

// RunError reports a run that ended in a terminal status other than completed.
type RunError struct {
	RunID   assistant.RunID
	Status  assistant.RunStatus
	Code    string
	Message string
}

func (e *RunError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("runner: run %s %s: %s: %s", e.RunID, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("runner: run %s %s", e.RunID, e.Status)
}

func (e *RunError) Unwrap() error { return ErrRunFailed }

// Runner drives provisioning and prompt cycles for sessions. It holds no
// per-session state; callers serialise work on a session.
type Runner struct {
	Service       assistant.Service
	Tools         []tools.ToolDefinition
	Model         string
	Policy        poll.Policy
	Clock         poll.Clock
	MaxToolRounds int
	Logger        *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

func WithModel(model string) Option { return func(r *Runner) { r.Model = model } }

func WithPolicy(p poll.Policy) Option { return func(r *Runner) { r.Policy = p } }

func WithClock(c poll.Clock) Option { return func(r *Runner) { r.Clock = c } }

// WithMaxToolRounds sets the submission bound; values below 1 keep the default.
func WithMaxToolRounds(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.MaxToolRounds = n
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.Logger = l } }

func New(svc assistant.Service, toolDefs []tools.ToolDefinition, opts ...Option) *Runner {
	r := &Runner{
		Service:       svc,
		Tools:         toolDefs,
		Policy:        poll.DefaultPolicy(),
		Clock:         poll.Real(),
		MaxToolRounds: DefaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Ask runs one prompt cycle: the prompt is appended locally and remotely, a
// run is started and driven to a terminal status, and on completion the
// assistant's reply is appended and returned. Remote failures leave the user
// message in place.
func (r *Runner) Ask(ctx context.Context, sess *memory.Session, prompt string) (string, error) {
	if !sess.Ready() {
		return "", ErrNotProvisioned
	}
	turnID, ok := telemetry.TurnIDFromContext(ctx)
	if !ok {
		turnID = "turn_" + uuid.NewString()
	}
	ctx = telemetry.WithTurnID(telemetry.WithSessionID(ctx, sess.ID), turnID)
	start := r.clock().Now()

	sess.Append(assistant.RoleUser, prompt)
	if _, err := r.Service.AppendMessage(ctx, sess.ThreadID, assistant.RoleUser, prompt); err != nil {
		return "", err
	}

	run, err := r.Service.CreateRun(ctx, sess.ThreadID, assistant.RunParams{
		AssistantID:            sess.AssistantID,
		AdditionalInstructions: recipientInstructions(sess.Recipients()),
	})
	if err != nil {
		return "", err
	}
	telemetry.EmitContext(ctx, "run_started", map[string]any{
		"run_id":       string(run.ID),
		"assistant_id": string(sess.AssistantID),
		"thread_id":    string(sess.ThreadID),
		"recipients":   len(sess.Recipients()),
	})

	rounds := 0
	for {
		run, err = r.await(ctx, sess.ThreadID, run)
		if err != nil {
			r.abandon(ctx, sess.ThreadID, run)
			r.finished(ctx, run, rounds, start, err)
			return "", err
		}
		if run.Status != assistant.RunStatusRequiresAction {
			break
		}
		if rounds >= r.maxRounds() {
			err = fmt.Errorf("%w (%d) on run %s", ErrToolRoundsExceeded, rounds, run.ID)
			r.abandon(ctx, sess.ThreadID, run)
			r.finished(ctx, run, rounds, start, err)
			return "", err
		}
		rounds++
		outputs := r.execTools(ctx, run.ToolCalls)
		next, err := r.Service.SubmitToolOutputs(ctx, sess.ThreadID, run.ID, outputs)
		if err != nil {
			r.abandon(ctx, sess.ThreadID, run)
			r.finished(ctx, run, rounds, start, err)
			return "", err
		}
		run = next
	}

	if run.Status != assistant.RunStatusCompleted {
		rerr := &RunError{RunID: run.ID, Status: run.Status}
		if run.LastError != nil {
			rerr.Code = run.LastError.Code
			rerr.Message = run.LastError.Message
		}
		r.finished(ctx, run, rounds, start, rerr)
		return "", rerr
	}

	msgs, err := r.Service.ListMessages(ctx, sess.ThreadID, assistant.ListOptions{RunID: run.ID, Order: assistant.OrderDesc})
	if err != nil {
		r.finished(ctx, run, rounds, start, err)
		return "", err
	}
	reply, ok := pickReply(msgs, run.ID)
	if !ok {
		err = fmt.Errorf("%w (run %s)", ErrNoReply, run.ID)
		r.finished(ctx, run, rounds, start, err)
		return "", err
	}
	sess.Append(assistant.RoleAssistant, reply)
	r.finished(ctx, run, rounds, start, nil)
	return reply, nil
}

// await polls while run is pending. A run that is already settled is returned
// without any query.
func (r *Runner) await(ctx context.Context, thread assistant.ThreadID, run assistant.Run) (assistant.Run, error) {
	if !run.Status.Pending() {
		return run, nil
	}
	w := r.Policy.Start(r.clock())
	for run.Status.Pending() {
		if err := w.Wait(ctx); err != nil {
			return run, fmt.Errorf("wait for run %s: %w", run.ID, err)
		}
		next, err := r.Service.RetrieveRun(ctx, thread, run.ID)
		if err != nil {
			return run, err
		}
		run = next
		telemetry.EmitContext(ctx, "run_polled", map[string]any{
			"run_id":  string(run.ID),
			"status":  string(run.Status),
			"attempt": w.Attempts(),
		})
	}
	return run, nil
}

// cancelTimeout bounds the CancelRun call made after a cycle gives up.
const cancelTimeout = 10 * time.Second

// abandon cancels a run the cycle will no longer drive, so the next prompt on
// the thread is accepted. It runs even when ctx is already done.
func (r *Runner) abandon(ctx context.Context, thread assistant.ThreadID, run assistant.Run) {
	if run.ID == "" || run.Status.Terminal() {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	got, err := r.Service.CancelRun(cctx, thread, run.ID)
	if err != nil {
		r.logger().WarnContext(ctx, "cancel run failed", "run_id", string(run.ID), "status", string(run.Status), "err", err)
		return
	}
	telemetry.EmitContext(ctx, "run_cancelled", map[string]any{
		"run_id": string(run.ID),
		"from":   string(run.Status),
		"status": string(got.Status),
	})
}

func (r *Runner) finished(ctx context.Context, run assistant.Run, rounds int, start time.Time, err error) {
	fields := map[string]any{
		"run_id":      string(run.ID),
		"status":      string(run.Status),
		"tool_rounds": rounds,
		"duration_ms": r.clock().Now().Sub(start).Milliseconds(),
		"error":       nil,
	}
	if err != nil {
		fields["error"] = errorKind(err)
		r.logger().WarnContext(ctx, "prompt cycle failed", "run_id", string(run.ID), "status", string(run.Status), "err", err)
	}
	telemetry.EmitContext(ctx, "run_finished", fields)
}

// errorKind maps err to a short label that never carries remote text.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrRunFailed):
		return "run_failed"
	case errors.Is(err, ErrToolRoundsExceeded):
		return "tool_rounds_exceeded"
	case errors.Is(err, ErrNoReply):
		return "no_reply"
	case errors.Is(err, poll.ErrTimeout):
		return "poll_timeout"
	case errors.Is(err, poll.ErrMaxAttempts):
		return "poll_attempts"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "remote_error"
}

func (r *Runner) clock() poll.Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return poll.Real()
}

func (r *Runner) maxRounds() int {
	if r.MaxToolRounds > 0 {
		return r.MaxToolRounds
	}
	return DefaultMaxToolRounds
}

// pickReply returns the newest assistant message belonging to run. Messages
// without a run id are accepted for services that do not report one.
func pickReply(newestFirst []assistant.Message, run assistant.RunID) (string, bool) {
	for _, m := range newestFirst {
		if m.Role != assistant.RoleAssistant {
			continue
		}
		if m.RunID == run || m.RunID == "" {
			return m.Text, true
		}
	}
	return "", false
}

// recipientInstructions tells the assistant which addresses the user has
// collected. Empty when there are none.
func recipientInstructions(addrs []string) string {
	if len(addrs) == 0 {
		return ""
	}
	return "Known recipient email addresses: " + strings.Join(addrs, ", ") + "."
}
