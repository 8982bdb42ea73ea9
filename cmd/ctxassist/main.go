package main

import (
	"fmt"
	"io"
	"os"

	"github.com/petasbytes/ctxassist/internal/app"
	"github.com/petasbytes/ctxassist/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath  string
	secretsPath string
	provider    string
	logLevel    string
	logJSON     bool

	// appOpts is set by tests to swap in fakes.
	appOpts []app.Option
}

func newRootCmd(opts ...app.Option) *cobra.Command {
	f := &rootFlags{appOpts: opts}
	cmd := &cobra.Command{
		Use:   "ctxassist",
		Short: "Answer questions from a context snippet, and email on request",
		Long: `ctxassist provisions an assistant over a pasted knowledge snippet and
answers questions strictly from it. It can send email through the
send_email tool when asked.

Configuration comes from --config, then the secrets file, then the
environment (OPENAI_API_KEY, ANTHROPIC_API_KEY, CTXA_*).`,
		SilenceUsage: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "config file (TOML, or YAML by extension)")
	pf.StringVar(&f.secretsPath, "secrets", "", "secrets file with OPENAI_API_KEY / ANTHROPIC_API_KEY")
	pf.StringVar(&f.provider, "provider", "", "assistant backend: openai or anthropic")
	pf.StringVar(&f.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.BoolVar(&f.logJSON, "log-json", false, "log as JSON")

	cmd.AddCommand(newChatCmd(f), newAskCmd(f), newServeCmd(f))
	return cmd
}

// build loads configuration and wires the application. Logs go to logOut.
func (f *rootFlags) build(logOut io.Writer, mutate func(*config.Config)) (*app.App, error) {
	cfg, err := config.Load(config.Options{ConfigPath: f.configPath, SecretsPath: f.secretsPath})
	if err != nil {
		return nil, err
	}
	if f.provider != "" {
		cfg.Provider = f.provider
	}
	if mutate != nil {
		mutate(cfg)
	}
	logger, err := app.NewLogger(logOut, f.logLevel, f.logJSON)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, logger, f.appOpts...)
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	return a, nil
}
