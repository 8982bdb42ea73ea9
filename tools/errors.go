package tools

import "encoding/json"

// Error codes reported back to the assistant.
const (
	ErrCodeUnknownTool  = "ERR_UNKNOWN_TOOL"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeToolFailed   = "ERR_TOOL_FAILED"
)

// ToolError is a machine-readable error body for surfacing back to the assistant as JSON.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns a compact, single-line JSON string to keep tool outputs small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}
