// Package storage opens the repository store selected by configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/config"
	"github.com/jwalitptl/tenant-billing/internal/repository"
	"github.com/jwalitptl/tenant-billing/internal/repository/memory"
	"github.com/jwalitptl/tenant-billing/internal/repository/postgres"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open returns a store for cfg.Driver. Postgres schemas are migrated when
// cfg.AutoMigrate is set. The memory driver keeps nothing across restarts.
func Open(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		log.Warn().Msg("using in-memory storage: data is lost on restart")
		return memory.NewStore(), nil
	case DriverPostgres, "":
		db, err := postgres.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return postgres.NewStore(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
