package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"corebridge/process-service/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the process tables",
	Long:  `Apply the schema of the configured store (STORE_DRIVER) and exit.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := newLogger(cfg); err != nil {
		return err
	}

	// Opening a store applies its schema.
	_, _, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	slog.Info("schema applied", "driver", cfg.StoreDriver)
	return nil
}
