package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scenario HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Serve == nil {
				return fmt.Errorf("HTTP server is not configured")
			}
			if addr == "" {
				addr = app.HTTPAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s\n", addr)
			return app.Serve(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to BRANCHPLAN_HTTP_ADDR)")
	return cmd
}
