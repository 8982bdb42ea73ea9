// Package runner provisions context-restricted assistants and drives prompt
// cycles against an assistant.Service.
//
// Invariant:
//   - every tool call in a requires_action batch gets exactly one output, in
//     request order, and the batch is submitted in one request.
//
// Flow:
//
//	user(text) -> run(queued..) -> requires_action -> tool outputs -> run(..completed) -> assistant(text)
package runner
