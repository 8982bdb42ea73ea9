// Package telemetry appends opt-in JSONL events describing provisioning,
// run lifecycle and tool execution. Events never contain prompts, context
// text or tool arguments.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventsFile is the JSONL file name under the artifacts dir.
const EventsFile = "events.jsonl"

// writeMu keeps lines from concurrent sessions whole.
var writeMu sync.Mutex

// Emit appends one JSON line to <artifacts dir>/events.jsonl when
// observation is on. The line carries fields plus "time" (RFC3339Nano, UTC)
// and "event". Failures are logged and otherwise ignored.
func Emit(name string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}
	m := make(map[string]any, len(fields)+2)
	maps.Copy(m, fields)
	m["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	m["event"] = name

	line, err := json.Marshal(m)
	if err != nil {
		slog.Warn("telemetry: marshal", "event", name, "err", err)
		return
	}
	if err := appendLine(ArtifactsDir(), append(line, '\n')); err != nil {
		slog.Warn("telemetry: write", "event", name, "err", err)
	}
}

func appendLine(dir string, line []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EmitContext is Emit plus the session and turn IDs carried by ctx.
func EmitContext(ctx context.Context, name string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}
	m := make(map[string]any, len(fields)+2)
	maps.Copy(m, fields)
	if id, ok := SessionIDFromContext(ctx); ok {
		m["session_id"] = id
	}
	if id, ok := TurnIDFromContext(ctx); ok {
		m["turn_id"] = id
	}
	Emit(name, m)
}
