package db

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pageinsights/pageinsights-backend/internal/db/backends/memory"
	"github.com/pageinsights/pageinsights-backend/internal/db/backends/postgres"
	"github.com/pageinsights/pageinsights-backend/internal/db/interfaces"
)

// Config holds storage configuration
type Config struct {
	Backend string // "postgres" or "memory"
	DSN     string // Postgres connection string
}

// NewStore creates a store based on configuration. An empty backend or a
// missing DSN falls back to the in-memory store, which is the development
// default.
func NewStore(cfg Config, logger *zap.SugaredLogger) (interfaces.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		logger.Infow("Using in-memory store")
		return memory.NewStore(), nil
	case "postgres":
		if cfg.DSN == "" {
			logger.Warnw("No Postgres DSN configured; falling back to in-memory store")
			return memory.NewStore(), nil
		}
		return postgres.New(cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
