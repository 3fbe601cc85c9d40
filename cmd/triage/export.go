package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/ai-reimbursement-triage/internal/container"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

var (
	exportOutput   string
	exportStatuses []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write cases to an Excel workbook",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default cases-YYYYMMDD.xlsx)")
	exportCmd.Flags().StringSliceVarP(&exportStatuses, "status", "s", nil, "only export cases in these statuses")
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	filter := entity.CaseFilter{}
	for _, s := range exportStatuses {
		status := entity.CaseStatus(strings.ToUpper(strings.TrimSpace(s)))
		if !status.IsValid() {
			return fmt.Errorf("unknown status %q", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	if exportOutput == "" {
		exportOutput = "cases-" + time.Now().Format("20060102") + ".xlsx"
	}

	c, err := container.New(cmd.Context(), cfg, logger, container.ModeAdmin)
	if err != nil {
		return err
	}
	defer c.Close()

	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", exportOutput, err)
	}
	if err := c.Admin().Export(cmd.Context(), f, filter); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Info("Export written", zap.String("path", exportOutput))
	return nil
}
