// Package app wires configuration into a ready assistant service, mail
// transport, runner and session store. Both the CLI and the HTTP server
// start from New.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/option"
	oaoption "github.com/openai/openai-go/option"
	"github.com/petasbytes/ctxassist/internal/assistant"
	"github.com/petasbytes/ctxassist/internal/config"
	"github.com/petasbytes/ctxassist/internal/mail"
	"github.com/petasbytes/ctxassist/internal/poll"
	"github.com/petasbytes/ctxassist/internal/provider"
	"github.com/petasbytes/ctxassist/internal/runner"
	"github.com/petasbytes/ctxassist/internal/telemetry"
	"github.com/petasbytes/ctxassist/memory"
	"github.com/petasbytes/ctxassist/tools"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Service assistant.Service
	Mail    mail.Transport
	Runner  *runner.Runner
	Store   *memory.Store
}

// Option adjusts wiring, mostly for tests.
type Option func(*options)

type options struct {
	httpClient *http.Client
	service    assistant.Service
	mail       mail.Transport
	clock      poll.Clock
}

// WithHTTPClient is used by whichever provider is configured.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithService bypasses provider construction.
func WithService(s assistant.Service) Option { return func(o *options) { o.service = s } }

// WithMailTransport bypasses mail transport construction.
func WithMailTransport(t mail.Transport) Option { return func(o *options) { o.mail = t } }

// WithClock sets the clock used for every poll loop.
func WithClock(c poll.Clock) Option { return func(o *options) { o.clock = c } }

// New validates cfg and builds the application.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = poll.Real()
	}

	telemetry.Configure(cfg.Telemetry.Observe, cfg.Telemetry.ArtifactsDir)

	svc := o.service
	if svc == nil {
		svc = newService(cfg, o)
	}
	transport := o.mail
	if transport == nil {
		var err error
		if transport, err = newMailTransport(cfg, logger); err != nil {
			return nil, err
		}
	}

	r := runner.New(svc, tools.Registry(transport),
		runner.WithModel(cfg.Model),
		runner.WithPolicy(cfg.Poll.Policy()),
		runner.WithClock(o.clock),
		runner.WithMaxToolRounds(cfg.MaxToolRounds),
		runner.WithLogger(logger),
	)

	logger.Debug("app wired",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"mail", cfg.Mail.Transport,
		"observe", cfg.Telemetry.Observe,
	)
	return &App{
		Config:  cfg,
		Logger:  logger,
		Service: svc,
		Mail:    transport,
		Runner:  r,
		Store:   memory.NewStore(),
	}, nil
}

func newService(cfg *config.Config, o options) assistant.Service {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		ropts := []option.RequestOption{option.WithAPIKey(cfg.Anthropic.APIKey)}
		if cfg.Anthropic.BaseURL != "" {
			ropts = append(ropts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		if o.httpClient != nil {
			ropts = append(ropts, option.WithHTTPClient(o.httpClient))
		}
		return provider.NewAnthropicAssistants(provider.NewAnthropicClient(ropts...),
			provider.WithMaxTokens(int64(cfg.Anthropic.MaxTokens)),
			provider.WithHistoryBudget(cfg.Anthropic.HistoryBudget),
		)
	default:
		ropts := []oaoption.RequestOption{oaoption.WithAPIKey(cfg.OpenAI.APIKey)}
		if cfg.OpenAI.BaseURL != "" {
			ropts = append(ropts, oaoption.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		if o.httpClient != nil {
			ropts = append(ropts, oaoption.WithHTTPClient(o.httpClient))
		}
		return provider.NewOpenAIAssistants(provider.NewOpenAIClient(ropts...),
			provider.WithClock(o.clock),
		)
	}
}

func newMailTransport(cfg *config.Config, logger *slog.Logger) (mail.Transport, error) {
	if cfg.Mail.Transport == config.MailSMTP {
		s := cfg.Mail.SMTP
		t, err := mail.NewSMTPTransport(mail.SMTPConfig{
			Addr:     s.Addr,
			Username: s.Username,
			Password: s.Password,
			FromName: s.FromName,
			FromAddr: s.FromAddr,
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return t, nil
	}
	return mail.NewLogTransport(logger), nil
}

// NewLogger builds a text or JSON slog logger at level ("debug", "info",
// "warn", "error").
func NewLogger(w io.Writer, level string, json bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("app: log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
