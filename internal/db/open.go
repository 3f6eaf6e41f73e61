package db

import (
	"context"
	"fmt"

	"github.com/soaringjerry/evibench/internal/api"
	"github.com/soaringjerry/evibench/internal/config"
	"github.com/soaringjerry/evibench/internal/logger"
)

// Open returns the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (api.Store, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(ctx, 2*cfg.StoreTimeout)
		defer cancel()
		return OpenMongo(ctx, cfg.MongoURI, cfg.Database, log)
	case config.BackendSQLite:
		return OpenSQLite(cfg.SQLitePath, "")
	case config.BackendMemory:
		return api.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
