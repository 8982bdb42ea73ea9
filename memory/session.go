package memory

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/petasbytes/ctxassist/internal/assistant"
)

// ErrEmptyRecipient is returned when a blank address is added.
var ErrEmptyRecipient = errors.New("memory: recipient address is empty")

// Message is a minimal view of a chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is one user's conversation. Callers serialise access; Store does
// that for concurrent servers.
type Session struct {
	ID        string
	CreatedAt time.Time

	AssistantID assistant.AssistantID
	ThreadID    assistant.ThreadID

	messages   []Message
	recipients []string

	mu sync.Mutex
}

// NewSession returns an empty, unprovisioned session.
func NewSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now().UTC()}
}

// Ready reports whether a prompt cycle can run.
func (s *Session) Ready() bool {
	return s.AssistantID != "" && s.ThreadID != ""
}

// Reset swaps in new handles and drops the transcript. Recipients survive.
func (s *Session) Reset(assistantID assistant.AssistantID, threadID assistant.ThreadID) {
	s.AssistantID = assistantID
	s.ThreadID = threadID
	s.messages = nil
}

// Append adds a message to the end of the transcript.
func (s *Session) Append(role assistant.Role, text string) {
	s.messages = append(s.messages, Message{Role: string(role), Content: text})
}

// Messages returns a copy of the transcript, oldest first.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// AddRecipient appends addr as typed. Only blank input is rejected; the list
// is a freeform scratchpad, so duplicates and malformed addresses are kept.
func (s *Session) AddRecipient(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return ErrEmptyRecipient
	}
	s.recipients = append(s.recipients, addr)
	return nil
}

// Recipients returns a copy of the recipient list in insertion order.
func (s *Session) Recipients() []string {
	out := make([]string, len(s.recipients))
	copy(out, s.recipients)
	return out
}
