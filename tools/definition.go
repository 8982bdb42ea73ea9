package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/petasbytes/ctxassist/internal/assistant"
)

// ToolDefinition couples the schema advertised to the assistant with the
// local handler that fulfils calls.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Function    func(ctx context.Context, input json.RawMessage) (string, error)
}

// GenerateSchema reflects T into an inline object schema. Fields without
// omitempty are required.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// FunctionTools converts definitions into the declarations sent to the service.
func FunctionTools(defs []ToolDefinition) []assistant.FunctionTool {
	out := make([]assistant.FunctionTool, 0, len(defs))
	for _, d := range defs {
		out = append(out, assistant.FunctionTool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.InputSchema,
		})
	}
	return out
}

// Find returns the definition named name, or nil.
func Find(defs []ToolDefinition, name string) *ToolDefinition {
	for i := range defs {
		if defs[i].Name == name {
			return &defs[i]
		}
	}
	return nil
}
