package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"photopool/internal/config"
	"photopool/internal/pool"
)

// DBFileName is the SQLite database file created inside the data directory.
const DBFileName = "photopool.db"

// schemaManager is implemented by every tracker backed by a migrated schema.
type schemaManager interface {
	MigrateUp() error
	CheckMigrations() error
}

// NewTrackerFromConfig creates a Tracker implementation based on the database config type.
// The schema is brought up to date unless skip_migrations is set, in which case
// it is only checked.
func NewTrackerFromConfig(ctx context.Context, cfg config.DatabaseConfig, clock pool.Clock) (pool.Tracker, error) {
	var (
		tracker pool.Tracker
		err     error
	)

	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		tracker, err = NewSQLiteTracker(filepath.Join(cfg.DataDir, DBFileName), clock)
	case "memory":
		tracker, err = NewSQLiteTracker(":memory:", clock)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres_dsn required for postgres database")
		}
		tracker, err = NewPostgresTracker(ctx, cfg.PostgresDSN, clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := prepareSchema(tracker.(schemaManager), cfg.SkipMigrations); err != nil {
		tracker.Close()
		return nil, err
	}
	return tracker, nil
}

func prepareSchema(s schemaManager, checkOnly bool) error {
	if checkOnly {
		if err := s.CheckMigrations(); err != nil {
			return fmt.Errorf("database schema check failed: %w", err)
		}
		return nil
	}
	if err := s.MigrateUp(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}
