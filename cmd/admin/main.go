package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/tenant-billing/internal/config"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	"github.com/jwalitptl/tenant-billing/internal/repository/storage"
	"github.com/jwalitptl/tenant-billing/pkg/logger"
)

// Replaced in tests.
var (
	loadConfig = config.LoadConfig
	openStore  = storage.Open
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Tenant billing operations",
	Long: `Operational commands for the tenant billing service.

Commands read the same configuration as the API (config.yaml, .env and
the environment), so DATABASE_URL must point at the production database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(promoteAdminCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tailEventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withStore loads configuration, opens the store and runs fn.
func withStore(ctx context.Context, fn func(cfg *config.Config, store repository.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(cfg, store)
}
