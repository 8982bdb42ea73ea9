package runner

import (
	"context"
	"errors"
	"time"

	"github.com/petasbytes/ctxassist/internal/assistant"
	"github.com/petasbytes/ctxassist/internal/telemetry"
	"github.com/petasbytes/ctxassist/tools"
)

// execTools fulfils calls in order, one output per call.
func (r *Runner) execTools(ctx context.Context, calls []assistant.ToolCall) []assistant.ToolOutput {
	outputs := make([]assistant.ToolOutput, 0, len(calls))
	for _, call := range calls {
		outputs = append(outputs, assistant.ToolOutput{
			ToolCallID: call.ID,
			Output:     r.execTool(ctx, call),
		})
	}
	return outputs
}

func (r *Runner) execTool(ctx context.Context, call assistant.ToolCall) string {
	// Helper to emit a tool_exec event
	emit := func(start time.Time, outputSize int, code string) {
		fields := map[string]any{
			"tool_name":    call.Name,
			"tool_call_id": call.ID,
			"duration_ms":  r.clock().Now().Sub(start).Milliseconds(),
			"input_size":   len(call.Arguments),
			"output_size":  outputSize,
		}
		if code != "" {
			fields["error"] = code
		} else {
			fields["error"] = nil
		}
		telemetry.EmitContext(ctx, "tool_exec", fields)
	}

	start := r.clock().Now()
	def := tools.Find(r.Tools, call.Name)
	if def == nil {
		emit(start, 0, tools.ErrCodeUnknownTool)
		r.logger().WarnContext(ctx, "unknown tool requested", "tool", call.Name, "tool_call_id", call.ID)
		return tools.ToolError{Code: tools.ErrCodeUnknownTool, Message: "unknown tool: " + call.Name}.Error()
	}

	resp, err := def.Function(ctx, call.Arguments)
	if err != nil {
		// The detailed message goes back to the model; telemetry only gets the code.
		var te tools.ToolError
		if !errors.As(err, &te) {
			te = tools.ToolError{Code: tools.ErrCodeToolFailed, Message: err.Error()}
		}
		emit(start, 0, te.Code)
		r.logger().WarnContext(ctx, "tool failed", "tool", call.Name, "tool_call_id", call.ID, "code", te.Code)
		return te.Error()
	}
	emit(start, len(resp), "")
	return resp
}
