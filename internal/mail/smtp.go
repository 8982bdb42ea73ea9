package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"

	"github.com/jhillyerd/enmime"
)

// SMTPConfig addresses a relay and the envelope sender.
type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	FromName string
	FromAddr string
}

// SMTPTransport sends through an SMTP relay.
type SMTPTransport struct {
	from   string
	name   string
	sender enmime.Sender
}

// NewSMTPTransport builds a transport for cfg. PLAIN auth is used when a
// username is configured.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("smtp: addr is required")
	}
	if cfg.FromAddr == "" {
		return nil, fmt.Errorf("smtp: from address is required")
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		host := cfg.Addr
		if h, _, err := net.SplitHostPort(cfg.Addr); err == nil {
			host = h
		}
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return NewSMTPTransportWithSender(cfg.FromName, cfg.FromAddr, enmime.NewSMTP(cfg.Addr, auth)), nil
}

// NewSMTPTransportWithSender uses an arbitrary enmime.Sender, e.g. a test double.
func NewSMTPTransportWithSender(fromName, fromAddr string, sender enmime.Sender) *SMTPTransport {
	return &SMTPTransport{from: fromAddr, name: fromName, sender: sender}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := Compose(t.name, t.from, msg).Send(t.sender); err != nil {
		return "", fmt.Errorf("smtp: send to %s: %w", msg.To, err)
	}
	return fmt.Sprintf("Email sent to %s.", msg.To), nil
}

// Compose builds the MIME message for msg.
func Compose(fromName, fromAddr string, msg Message) enmime.MailBuilder {
	return enmime.Builder().
		From(fromName, fromAddr).
		To("", msg.To).
		Subject(msg.Subject).
		Text([]byte(msg.Body))
}
