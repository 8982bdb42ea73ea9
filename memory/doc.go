// Package memory holds per-session conversation state.
//
// State model:
//   - A Session owns the assistant id, thread id, text transcript and recipient list.
//   - Provisioning replaces the handles and clears the transcript.
//   - Nothing is reloaded across restarts; SaveTranscript is an export only.
package memory
