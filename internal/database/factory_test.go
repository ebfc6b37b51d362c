package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"photopool/internal/config"
)

func TestNewTrackerFromConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("memory database", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewTrackerFromConfig(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("NewTrackerFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := got.MarkUsed(ctx, "a.jpg"); err != nil {
			t.Errorf("MarkUsed() on migrated memory database: %v", err)
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		cfg := config.DatabaseConfig{Type: "sqlite", DataDir: dir}
		got, err := NewTrackerFromConfig(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("NewTrackerFromConfig() unexpected error: %v", err)
		}
		got.Close()

		if _, err := os.Stat(filepath.Join(dir, DBFileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
	})

	t.Run("sqlite database persists across opens", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()}

		first, err := NewTrackerFromConfig(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("NewTrackerFromConfig() unexpected error: %v", err)
		}
		if _, err := first.MarkUsed(ctx, "kept.jpg"); err != nil {
			t.Fatalf("MarkUsed() error = %v", err)
		}
		first.Close()

		second, err := NewTrackerFromConfig(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("reopening: %v", err)
		}
		defer second.Close()

		used, err := second.IsUsed(ctx, "kept.jpg")
		if err != nil {
			t.Fatalf("IsUsed() error = %v", err)
		}
		if !used {
			t.Error("used set did not survive reopening the database")
		}
	})

	t.Run("skip migrations on fresh database fails the check", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir(), SkipMigrations: true}
		got, err := NewTrackerFromConfig(ctx, cfg, nil)
		if err == nil {
			got.Close()
			t.Fatal("NewTrackerFromConfig() expected schema check error, got nil")
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewTrackerFromConfig(ctx, cfg, nil)
		if err == nil {
			t.Error("NewTrackerFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewTrackerFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "postgres"}
		if _, err := NewTrackerFromConfig(ctx, cfg, nil); err == nil {
			t.Error("NewTrackerFromConfig() expected error for missing dsn, got nil")
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "unknown"}
		got, err := NewTrackerFromConfig(ctx, cfg, nil)
		if err == nil {
			t.Error("NewTrackerFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewTrackerFromConfig() should return nil on error")
			got.Close()
		}
	})
}
