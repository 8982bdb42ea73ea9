// Package provider implements assistant.Service against remote model APIs.
//
// OpenAIAssistants speaks the OpenAI Assistants v2 API directly.
// AnthropicAssistants emulates the same assistant/thread/run lifecycle in
// process over the Anthropic Messages API, so either backend can drive the
// run orchestrator unchanged.
package provider
