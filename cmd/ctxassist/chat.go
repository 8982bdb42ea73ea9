package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/petasbytes/ctxassist/internal/app"
	"github.com/petasbytes/ctxassist/internal/runner"
	"github.com/petasbytes/ctxassist/memory"
	"github.com/spf13/cobra"
)

var (
	youStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	infoStyle = lipgloss.NewStyle().Faint(true)
)

const chatHelp = `Commands:
  /context <file>  load a knowledge snippet and start a fresh conversation
  /email <addr>    remember a recipient address
  /emails          list remembered addresses
  /help            show this list
  /quit            exit`

func newChatCmd(f *rootFlags) *cobra.Command {
	var contextFile, transcript string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat over a context snippet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := f.build(cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := &chatSession{app: a, sess: a.Store.Create(), out: cmd.OutOrStdout(), transcript: transcript}
			if contextFile != "" {
				c.loadContext(ctx, contextFile)
			}
			return c.loop(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&contextFile, "context-file", "", "knowledge snippet to provision at start")
	cmd.Flags().StringVar(&transcript, "transcript", "", "write the transcript as JSON to this file after each turn")
	return cmd
}

// chatSession is the terminal shell around one memory.Session.
type chatSession struct {
	app        *app.App
	sess       *memory.Session
	out        io.Writer
	transcript string
}

func (c *chatSession) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(c.out, infoStyle.Render("Paste context with /context <file>, then ask away. /help lists commands, Ctrl-C quits."))

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// stdin reader goroutine -> lines into channel
	inputCh := make(chan string)
	go func() {
		defer close(inputCh)
		for scanner.Scan() {
			select {
			case inputCh <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, youStyle.Render("You")+": ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out, "\nExiting...")
			return nil
		case l, ok := <-inputCh:
			if !ok {
				fmt.Fprintln(c.out)
				return scanner.Err()
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.command(ctx, line); quit {
				return nil
			}
			continue
		}
		c.ask(ctx, line)
	}
}

// command handles one slash command and reports whether to exit.
func (c *chatSession) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(c.out, chatHelp)
	case "/context":
		if arg == "" {
			c.errorf("usage: /context <file>")
			return false
		}
		c.loadContext(ctx, arg)
	case "/email":
		if err := c.sess.AddRecipient(arg); err != nil {
			c.errorf("usage: /email <addr>")
			return false
		}
		c.infof("Added %s", arg)
	case "/emails":
		list := c.sess.Recipients()
		if len(list) == 0 {
			c.infof("No addresses yet.")
			return false
		}
		for _, r := range list {
			fmt.Fprintln(c.out, "  "+r)
		}
	default:
		c.errorf("unknown command %s (try /help)", name)
	}
	return false
}

func (c *chatSession) loadContext(ctx context.Context, path string) {
	b, err := os.ReadFile(path)
	if err != nil {
		c.errorf("read context: %v", err)
		return
	}
	c.infof("Provisioning assistant...")
	if err := c.app.Runner.Provision(ctx, c.sess, string(b)); err != nil {
		if errors.Is(err, runner.ErrEmptyContext) {
			c.errorf("context file %s is empty", path)
			return
		}
		c.errorf("provision: %v", err)
		return
	}
	c.infof("Assistant ready (%d bytes of context). Conversation cleared.", len(b))
	c.save()
}

func (c *chatSession) ask(ctx context.Context, prompt string) {
	reply, err := c.app.Runner.Ask(ctx, c.sess, prompt)
	if err != nil {
		if errors.Is(err, runner.ErrNotProvisioned) {
			c.errorf("no context yet; load one with /context <file>")
			return
		}
		c.errorf("%v", err)
		c.save()
		return
	}
	fmt.Fprintln(c.out, botStyle.Render("Assistant")+": "+reply)
	c.save()
}

func (c *chatSession) save() {
	if c.transcript == "" {
		return
	}
	if err := memory.SaveTranscript(c.transcript, c.sess.Messages()); err != nil {
		c.errorf("warning: failed to save transcript: %v", err)
	}
}

func (c *chatSession) infof(format string, args ...any) {
	fmt.Fprintln(c.out, infoStyle.Render(fmt.Sprintf(format, args...)))
}

func (c *chatSession) errorf(format string, args ...any) {
	fmt.Fprintln(c.out, errStyle.Render(fmt.Sprintf(format, args...)))
}
