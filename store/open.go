// Package store opens the configured storage backend.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brc/transport-ledger/config"
	"github.com/brc/transport-ledger/posting"
	"github.com/brc/transport-ledger/store/memory"
	"github.com/brc/transport-ledger/store/mongodb"
	"github.com/brc/transport-ledger/store/sqlite"
)

// Backend is an open store and the function that releases it.
type Backend struct {
	Store  posting.TxStore
	Driver string
	close  func(context.Context) error
}

// Close releases the backend's connections.
func (b *Backend) Close(ctx context.Context) error {
	if b.close == nil {
		return nil
	}
	return b.close(ctx)
}

// Open opens the store cfg selects. The sqlite parent directory is created
// when missing; mongodb indexes are ensured before returning.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return &Backend{Store: memory.New(), Driver: cfg.Driver}, nil

	case config.DriverSQLite:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", "path", cfg.Path)
		return &Backend{Store: s, Driver: cfg.Driver, close: func(context.Context) error { return s.Close() }}, nil

	case config.DriverMongoDB:
		s, err := mongodb.Open(ctx, mongodb.Config{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("failed to ensure indexes: %w", err)
		}
		logger.Info("mongodb store opened", "database", cfg.MongoDatabase)
		return &Backend{Store: s, Driver: cfg.Driver, close: s.Close}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
