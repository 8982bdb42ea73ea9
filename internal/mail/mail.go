// Package mail delivers messages requested through the send_email tool.
//
// LogTransport is the default stand-in: it records and logs, and always
// succeeds. SMTPTransport composes a MIME message and hands it to an SMTP
// relay.
package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SentText is what LogTransport reports back to the assistant.
const SentText = "Email sent successfully!"

// Message is one outgoing email. Addresses are not validated.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport sends a message and returns a short human-readable result.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Record is a message kept by LogTransport.
type Record struct {
	Message
	SentAt time.Time
}

// LogTransport logs each message and keeps it in memory.
type LogTransport struct {
	Logger *slog.Logger

	mu     sync.Mutex
	outbox []Record
}

// NewLogTransport returns a LogTransport logging to logger, or slog.Default() when nil.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{Logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	t.mu.Lock()
	t.outbox = append(t.outbox, Record{Message: msg, SentAt: time.Now().UTC()})
	t.mu.Unlock()

	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "mock email",
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return SentText, nil
}

// Outbox returns every recorded message, oldest first.
func (t *LogTransport) Outbox() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.outbox))
	copy(out, t.outbox)
	return out
}
