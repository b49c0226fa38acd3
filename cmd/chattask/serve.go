package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/chattask/internal/app"
	"github.com/nhle/chattask/internal/credential"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server, delivery workers and sweeper",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, credential.NewStore(), logger)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(ctx)
	},
}
