package main

import (
	"github.com/spf13/cobra"

	"github.com/garyjia/ai-reimbursement-triage/internal/container"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Opening the database applies every pending migration
	db, err := container.ProvideDatabase(cmd.Context(), &cfg.Database, logger)
	if err != nil {
		return err
	}
	return db.Conn.Close()
}
