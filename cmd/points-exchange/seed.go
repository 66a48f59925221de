package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/points-exchange/internal/config"
	"github.com/fairyhunter13/points-exchange/internal/ledger"
	"github.com/fairyhunter13/points-exchange/internal/model"
	"github.com/fairyhunter13/points-exchange/internal/obs"
)

var seedFile string

type catalog struct {
	Products []model.Product `yaml:"products"`
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load products and card keys from a YAML catalog",
		Long: `Load products and card keys from a YAML catalog into the configured store.

Each product replaces any stored product with the same id. Stock is taken
from the number of card keys listed.

Example:
  points-exchange seed --file products.yaml`,
		Args: cobra.NoArgs,
		RunE: runSeed,
	}
	cmd.Flags().StringVarP(&seedFile, "file", "f", "products.yaml", "catalog file")
	return cmd
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	obs.InitLogger(cfg.LogLevel)
	if cfg.DatabaseDriver == ledger.DriverMemory {
		return fmt.Errorf("seed needs a SQL driver, got %q", cfg.DatabaseDriver)
	}
	f, err := os.Open(seedFile)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	products, err := readCatalog(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := seed(ctx, st.ledger, products); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", len(products))
	return nil
}

// readCatalog decodes a catalog and derives each product's stock from its
// card keys.
func readCatalog(r io.Reader) ([]model.Product, error) {
	var c catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range c.Products {
		p := &c.Products[i]
		p.Stock = int64(len(p.CardKeys))
		if p.Status == "" {
			p.Status = model.StatusActive
		}
	}
	return c.Products, nil
}

func seed(ctx context.Context, l ledger.Ledger, products []model.Product) error {
	for _, p := range products {
		if err := l.Put(ctx, p); err != nil {
			return fmt.Errorf("seed %s: %w", p.ID, err)
		}
		obs.Logger.Info("product_seeded", "product_id", p.ID, "stock", p.Stock)
	}
	return nil
}
