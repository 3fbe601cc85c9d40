package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/container"
)

var noPoll bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API and poll the mailbox on an interval",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noPoll, "no-poll", false, "serve the API without the background mailbox poller")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := commandContext(cmd)
	defer stop()

	c, err := container.New(ctx, cfg, logger, container.ModeFull)
	if err != nil {
		return err
	}
	defer c.Close()

	if !noPoll {
		if err := c.StartPoller(ctx); err != nil {
			return err
		}
	}

	logger.Info("Starting triage service",
		zap.String("mailbox", cfg.Mailbox.Driver),
		zap.Duration("poll_interval", cfg.Processing.PollInterval),
		zap.Bool("poller", !noPoll))

	if err := c.HTTPServer().Start(ctx); err != nil {
		return err
	}

	logger.Info("Server exited successfully")
	return nil
}

// commandContext cancels on SIGINT or SIGTERM
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}
