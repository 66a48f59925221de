package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fairyhunter13/points-exchange/internal/config"
	"github.com/fairyhunter13/points-exchange/internal/journal"
	"github.com/fairyhunter13/points-exchange/internal/ledger"
)

// stores bundles the ledger and journal built from one database setting.
type stores struct {
	ledger  ledger.Ledger
	journal journal.Journal
	db      *sqlx.DB
}

func (s stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// openStores connects the configured backend. SQLite files are migrated on
// open; Postgres schemas are expected to be managed with the migrate command.
func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.DatabaseDriver == ledger.DriverMemory {
		return stores{ledger: ledger.NewMemory(), journal: journal.NewMemory()}, nil
	}
	if cfg.DatabaseURL == "" {
		return stores{}, fmt.Errorf("DATABASE_URL is required for driver %q", cfg.DatabaseDriver)
	}
	db, err := ledger.OpenDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	if cfg.DatabaseDriver == ledger.DriverSQLite {
		if err := migrate(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, err
		}
	}
	return stores{
		ledger:  ledger.NewSQL(db, cfg.LockTimeout),
		journal: journal.NewSQL(db),
		db:      db,
	}, nil
}

func migrate(ctx context.Context, db *sqlx.DB) error {
	if err := ledger.Migrate(ctx, db); err != nil {
		return err
	}
	return journal.Migrate(ctx, db)
}
