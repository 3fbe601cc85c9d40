package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/ai-reimbursement-triage/internal/container"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan the mailbox once and triage eligible messages",
	RunE:  runOnce,
}

var processCmd = &cobra.Command{
	Use:   "process <case-id>",
	Short: "Re-run triage for one mailbox message",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func runOnce(cmd *cobra.Command, _ []string) error {
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

	report, err := c.Batch().Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, report)
}

func runProcess(cmd *cobra.Command, args []string) error {
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

	result, err := c.Processor().Process(ctx, args[0])
	if err != nil {
		return err
	}

	out := map[string]any{
		"case":     result.Case,
		"skipped":  result.Skipped,
		"notified": result.Notified,
	}
	if result.NotifyError != nil {
		out["notify_error"] = result.NotifyError.Error()
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
