package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/points-exchange/internal/config"
	"github.com/fairyhunter13/points-exchange/internal/ledger"
	"github.com/fairyhunter13/points-exchange/internal/obs"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the products and fulfillments tables",
		Long: `Create the products and fulfillments tables in the database named by
DATABASE_DRIVER and DATABASE_URL. Existing tables are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			obs.InitLogger(cfg.LogLevel)
			if cfg.DatabaseDriver == ledger.DriverMemory {
				return fmt.Errorf("migrate needs a SQL driver, got %q", cfg.DatabaseDriver)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			db, err := ledger.OpenDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrate(ctx, db); err != nil {
				return err
			}
			obs.Logger.Info("migrate_complete", "database_driver", cfg.DatabaseDriver)
			return nil
		},
	}
}
