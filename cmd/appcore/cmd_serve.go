package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shashiranjanraj/appcore/pkg/app"
)

// appcore serve: start the server and block until SIGINT or SIGTERM.
func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"run", "start"},
		Short:   "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Start(ctx, nil, app.WithConfigOptions(g.configOptions()))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listening on port %d\n", a.Port())

			select {
			case <-ctx.Done():
			case <-a.Done():
			}

			timeout := a.Config().GetDuration("server.shutdownTimeout")
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			a.Logger().Info("shutting down", zap.Duration("timeout", timeout))
			return app.Stop(shutdownCtx, a)
		},
	}
}
