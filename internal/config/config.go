// Package config loads ctxassist configuration.
//
// Values are layered, later layers winning:
//   - built-in defaults
//   - an optional config file (TOML, or YAML by .yaml/.yml extension)
//   - a secrets file holding OPENAI_API_KEY / ANTHROPIC_API_KEY
//   - environment variables (OPENAI_API_KEY, ANTHROPIC_API_KEY, CTXA_*)
//
// Load never validates; call Validate before using the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/petasbytes/ctxassist/internal/poll"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	MailLog  = "log"
	MailSMTP = "smtp"
)

// DefaultSecretsFiles are tried, in order, when no secrets path is given.
var DefaultSecretsFiles = []string{"secrets.toml", filepath.Join(".streamlit", "secrets.toml")}

// Config is the full runtime configuration.
type Config struct {
	// Provider selects the assistant backend: "openai" or "anthropic".
	Provider string `toml:"provider" yaml:"provider"`
	// Model overrides the backend's default model.
	Model string `toml:"model" yaml:"model"`

	OpenAI    OpenAIConfig    `toml:"openai" yaml:"openai"`
	Anthropic AnthropicConfig `toml:"anthropic" yaml:"anthropic"`

	Poll PollConfig `toml:"poll" yaml:"poll"`
	// MaxToolRounds bounds tool-output submissions per prompt.
	MaxToolRounds int `toml:"max_tool_rounds" yaml:"max_tool_rounds"`

	Mail      MailConfig      `toml:"mail" yaml:"mail"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
}

type OpenAIConfig struct {
	APIKey  string `toml:"api_key" yaml:"api_key"`
	BaseURL string `toml:"base_url" yaml:"base_url"`
}

type AnthropicConfig struct {
	APIKey  string `toml:"api_key" yaml:"api_key"`
	BaseURL string `toml:"base_url" yaml:"base_url"`
	// MaxTokens caps each reply; 0 uses the provider default.
	MaxTokens int `toml:"max_tokens" yaml:"max_tokens"`
	// HistoryBudget bounds the estimated size of thread history sent per
	// request; 0 sends everything.
	HistoryBudget int `toml:"history_budget" yaml:"history_budget"`
}

// PollConfig mirrors poll.Policy.
type PollConfig struct {
	Interval    Duration `toml:"interval" yaml:"interval"`
	MaxInterval Duration `toml:"max_interval" yaml:"max_interval"`
	Multiplier  float64  `toml:"multiplier" yaml:"multiplier"`
	MaxAttempts int      `toml:"max_attempts" yaml:"max_attempts"`
	Timeout     Duration `toml:"timeout" yaml:"timeout"`
}

// Policy converts c for the run orchestrator.
func (c PollConfig) Policy() poll.Policy {
	return poll.Policy{
		Interval:    c.Interval.Duration,
		MaxInterval: c.MaxInterval.Duration,
		Multiplier:  c.Multiplier,
		MaxAttempts: c.MaxAttempts,
		Timeout:     c.Timeout.Duration,
	}
}

type MailConfig struct {
	// Transport is "log" (record and log only) or "smtp".
	Transport string     `toml:"transport" yaml:"transport"`
	SMTP      SMTPConfig `toml:"smtp" yaml:"smtp"`
}

type SMTPConfig struct {
	Addr     string `toml:"addr" yaml:"addr"`
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
	FromName string `toml:"from_name" yaml:"from_name"`
	FromAddr string `toml:"from_addr" yaml:"from_addr"`
}

type ServerConfig struct {
	Addr            string   `toml:"addr" yaml:"addr"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AllowedOrigins lists browser origins, besides the server's own, that
	// may open the chat socket.
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins"`
}

type TelemetryConfig struct {
	// Observe turns on JSONL event emission.
	Observe      bool   `toml:"observe" yaml:"observe"`
	ArtifactsDir string `toml:"artifacts_dir" yaml:"artifacts_dir"`
}

// Duration is a time.Duration written as a Go duration string ("1s", "10m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

// Default returns the base configuration before any file or env is applied.
func Default() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		Poll: PollConfig{
			Interval: Duration{poll.DefaultInterval},
			Timeout:  Duration{poll.DefaultTimeout},
		},
		MaxToolRounds: 3,
		Mail:          MailConfig{Transport: MailLog},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Telemetry: TelemetryConfig{ArtifactsDir: ".ctxassist"},
	}
}

// Options names the files Load reads. Empty paths are optional; a named
// path that does not exist is an error.
type Options struct {
	ConfigPath  string
	SecretsPath string
}

// Load builds the configuration from defaults, files and the environment.
func Load(opts Options) (*Config, error) {
	cfg := Default()
	if opts.ConfigPath != "" {
		if err := cfg.loadFile(opts.ConfigPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadSecrets(opts.SecretsPath); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a config file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return fmt.Errorf("config: %s: unknown keys %v", path, undec)
		}
	}
	return nil
}

type secrets struct {
	OpenAIAPIKey    string `toml:"OPENAI_API_KEY"`
	AnthropicAPIKey string `toml:"ANTHROPIC_API_KEY"`
}

// loadSecrets reads API keys from path, or from the first default secrets
// file that exists when path is empty.
func (c *Config) loadSecrets(path string) error {
	if path == "" {
		for _, p := range DefaultSecretsFiles {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return nil
		}
	}
	var s secrets
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return fmt.Errorf("config: secrets %s: %w", path, err)
	}
	if s.OpenAIAPIKey != "" {
		c.OpenAI.APIKey = s.OpenAIAPIKey
	}
	if s.AnthropicAPIKey != "" {
		c.Anthropic.APIKey = s.AnthropicAPIKey
	}
	return nil
}

// applyEnv overlays environment values. lookup is os.LookupEnv outside tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("ANTHROPIC_API_KEY", &c.Anthropic.APIKey)
	str("CTXA_PROVIDER", &c.Provider)
	str("CTXA_MODEL", &c.Model)
	str("CTXA_OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("CTXA_ANTHROPIC_BASE_URL", &c.Anthropic.BaseURL)
	num("CTXA_ANTHROPIC_MAX_TOKENS", &c.Anthropic.MaxTokens)
	num("CTXA_ANTHROPIC_HISTORY_BUDGET", &c.Anthropic.HistoryBudget)
	dur("CTXA_POLL_INTERVAL", &c.Poll.Interval)
	dur("CTXA_POLL_TIMEOUT", &c.Poll.Timeout)
	num("CTXA_POLL_MAX_ATTEMPTS", &c.Poll.MaxAttempts)
	num("CTXA_MAX_TOOL_ROUNDS", &c.MaxToolRounds)
	str("CTXA_MAIL_TRANSPORT", &c.Mail.Transport)
	str("CTXA_SMTP_ADDR", &c.Mail.SMTP.Addr)
	str("CTXA_SMTP_USERNAME", &c.Mail.SMTP.Username)
	str("CTXA_SMTP_PASSWORD", &c.Mail.SMTP.Password)
	str("CTXA_SMTP_FROM", &c.Mail.SMTP.FromAddr)
	str("CTXA_SERVER_ADDR", &c.Server.Addr)
	if v, ok := lookup("CTXA_SERVER_ALLOWED_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}
	str("CTXA_ARTIFACTS_DIR", &c.Telemetry.ArtifactsDir)
	if v, ok := lookup("CTXA_OBSERVE_JSON"); ok && v != "" {
		c.Telemetry.Observe = v == "1"
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

// APIKey returns the credential for the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == ProviderAnthropic {
		return c.Anthropic.APIKey
	}
	return c.OpenAI.APIKey
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY not found; add it to secrets.toml or the environment"))
		}
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			errs = append(errs, fmt.Errorf("ANTHROPIC_API_KEY not found; add it to secrets.toml or the environment"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.Provider))
	}

	if c.Anthropic.HistoryBudget < 0 {
		errs = append(errs, fmt.Errorf("anthropic.history_budget must not be negative, got %d", c.Anthropic.HistoryBudget))
	}
	if err := c.Poll.Policy().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxToolRounds < 1 {
		errs = append(errs, fmt.Errorf("max_tool_rounds must be at least 1, got %d", c.MaxToolRounds))
	}

	switch c.Mail.Transport {
	case MailLog:
	case MailSMTP:
		if c.Mail.SMTP.Addr == "" {
			errs = append(errs, fmt.Errorf("mail.smtp.addr is required for the smtp transport"))
		}
		if c.Mail.SMTP.FromAddr == "" {
			errs = append(errs, fmt.Errorf("mail.smtp.from_addr is required for the smtp transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.transport must be %q or %q, got %q", MailLog, MailSMTP, c.Mail.Transport))
	}

	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
