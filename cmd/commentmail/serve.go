package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/commentmail/internal/platform"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch for comment events and send notifications",
	Long: `Consume comment events from the document store watcher (and Kafka, when
enabled) and mail notifications until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		app, err := platform.New(cfg, platform.WithLogger(logger))
		if err != nil {
			return err
		}
		defer app.Close()

		if err := cfg.CheckMail(); err != nil {
			logger.Warn("mail is not configured, every notification will fail", "error", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return app.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
