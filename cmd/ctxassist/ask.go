package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newAskCmd(f *rootFlags) *cobra.Command {
	var (
		contextFile string
		contextText string
		recipients  []string
	)
	cmd := &cobra.Command{
		Use:   "ask [flags] <question>",
		Short: "Provision an assistant and ask it one question",
		Example: `  ctxassist ask --context-file hours.txt "When do you open on Sunday?"
  ctxassist ask --context "Shop opens at 9." --email ops@example.com "Email ops our hours"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := contextText
			if contextFile != "" {
				b, err := os.ReadFile(contextFile)
				if err != nil {
					return fmt.Errorf("read context: %w", err)
				}
				text = string(b)
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("one of --context-file or --context is required")
			}

			a, err := f.build(cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess := a.Store.Create()
			for _, r := range recipients {
				if err := sess.AddRecipient(r); err != nil {
					return err
				}
			}
			if err := a.Runner.Provision(ctx, sess, text); err != nil {
				return err
			}
			reply, err := a.Runner.Ask(ctx, sess, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextFile, "context-file", "", "file holding the knowledge snippet")
	cmd.Flags().StringVar(&contextText, "context", "", "knowledge snippet given inline")
	cmd.Flags().StringArrayVar(&recipients, "email", nil, "known recipient address (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("context-file", "context")
	return cmd
}
