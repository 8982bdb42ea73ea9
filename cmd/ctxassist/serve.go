package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/petasbytes/ctxassist/internal/config"
	"github.com/petasbytes/ctxassist/internal/httpapi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(f *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := f.build(cmd.ErrOrStderr(), func(cfg *config.Config) {
				if addr != "" {
					cfg.Server.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e := httpapi.NewServer(httpapi.NewHandler(a.Store, a.Runner, a.Logger,
				httpapi.WithAllowedOrigins(a.Config.Server.AllowedOrigins...)))
			listen := a.Config.Server.Addr

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.Logger.Info("listening", "addr", listen, "provider", a.Config.Provider)
				if err := e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.Logger.Info("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout.Duration)
				defer cancel()
				return e.Shutdown(sctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
