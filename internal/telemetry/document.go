package telemetry

import (
	"context"

	"github.com/petasbytes/ctxassist/internal/metrics"
)

// EmitDocumentFeatures emits event with size features of text under
// "document". The text itself is never written.
func EmitDocumentFeatures(ctx context.Context, event, text string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}
	f := metrics.CountFeatures(text)
	m := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		m[k] = v
	}
	m["features_version"] = "2"
	m["document"] = map[string]any{
		"bytes":      f.Bytes,
		"runes":      f.Runes,
		"words":      f.Words,
		"lines":      f.Lines,
		"paragraphs": f.Paragraphs,
	}
	EmitContext(ctx, event, m)
}
