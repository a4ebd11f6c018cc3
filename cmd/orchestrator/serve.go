package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petasbytes/buildfile-agent/internal/server"
	"github.com/petasbytes/buildfile-agent/tools"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the step API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Server
			if port != 0 {
				cfg.Port = port
			}
			f, err := a.fetcher()
			if err != nil {
				return err
			}
			srv, err := server.NewServer(a.orchestrator(), tools.Registry(f), a.log.Named("http"), &cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Warn("shutdown", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}
