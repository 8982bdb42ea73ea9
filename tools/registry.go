package tools

import "github.com/petasbytes/ctxassist/internal/mail"

// Registry returns all tool definitions wired for the assistant
func Registry(transport mail.Transport) []ToolDefinition {
	return []ToolDefinition{SendEmailDefinition(transport)}
}
