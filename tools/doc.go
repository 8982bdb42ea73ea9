// Package tools defines tool contracts and implementations.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - send_email: hands a message to a mail.Transport.
//   - Invariant: every tool call gets exactly one output, errors included.
package tools
