// Package transcriptdb opens the transcript storage driver selected by the
// configuration: PostgreSQL, then SQLite, then in-memory.
package transcriptdb

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kgourjau/BridgeAI/pkg/storage"
	"github.com/kgourjau/BridgeAI/pkg/storage/inmemory"
	"github.com/kgourjau/BridgeAI/pkg/storage/postgres"
	"github.com/kgourjau/BridgeAI/pkg/storage/sqlite"
)

// Options selects a backend. The first non-empty field wins.
type Options struct {
	PostgresDSN string
	SQLitePath  string
}

// Open returns the storage driver for opts.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (storage.Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch {
	case opts.PostgresDSN != "":
		driver, err := postgres.NewDriver(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil

	case opts.SQLitePath != "":
		driver, err := sqlite.NewSQLiteDriver(opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		logger.Info("using SQLite storage", zap.String("path", opts.SQLitePath))
		return driver, nil

	default:
		logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	}
}
