package database

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"photopool/internal/database/migrations"
	"photopool/internal/pool"
)

// PostgresTracker implements the pool.Tracker interface on PostgreSQL, for
// deployments where several processes share one used set.
type PostgresTracker struct {
	db    *pgxpool.Pool
	clock pool.Clock
}

// NewPostgresTracker connects to PostgreSQL using dsn and verifies the
// connection. If clock is nil, the real clock is used.
func NewPostgresTracker(ctx context.Context, dsn string, clock pool.Clock) (*PostgresTracker, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if clock == nil {
		clock = pool.RealClock{}
	}
	return &PostgresTracker{db: p, clock: clock}, nil
}

func (t *PostgresTracker) IsUsed(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := t.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM used_photos WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking used photo %s: %w", id, err)
	}
	return exists, nil
}

func (t *PostgresTracker) MarkUsed(ctx context.Context, id string) (bool, error) {
	tag, err := t.db.Exec(ctx,
		"INSERT INTO used_photos (id, used_at) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING",
		id, t.clock.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("marking photo %s used: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *PostgresTracker) UnusedOf(ctx context.Context, ids []string) ([]string, error) {
	used, err := t.UsedIDs(ctx)
	if err != nil {
		return nil, err
	}
	return unusedOf(ids, used), nil
}

func (t *PostgresTracker) UsedIDs(ctx context.Context) ([]string, error) {
	rows, err := t.db.Query(ctx, "SELECT id FROM used_photos ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing used photos: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing used photos: %w", err)
	}
	return ids, nil
}

// Reset clears the used set and records the reset in a single transaction.
func (t *PostgresTracker) Reset(ctx context.Context) (int64, error) {
	var cleared int64
	err := pgx.BeginFunc(ctx, t.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM used_photos")
		if err != nil {
			return fmt.Errorf("clearing used photos: %w", err)
		}
		cleared = tag.RowsAffected()

		_, err = tx.Exec(ctx,
			"INSERT INTO pool_resets (reset_at, cleared) VALUES ($1, $2)",
			t.clock.Now().UTC(), cleared)
		if err != nil {
			return fmt.Errorf("recording reset: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cleared, nil
}

func (t *PostgresTracker) LastReset(ctx context.Context) (*pool.ResetRecord, error) {
	var r pool.ResetRecord
	err := t.db.QueryRow(ctx,
		"SELECT reset_at, cleared FROM pool_resets ORDER BY id DESC LIMIT 1",
	).Scan(&r.ResetAt, &r.Cleared)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading last reset: %w", err)
	}
	return &r, nil
}

func (t *PostgresTracker) RecentUsage(ctx context.Context, limit int) ([]*pool.UsageEntry, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := t.db.Query(ctx,
		"SELECT id, used_at FROM used_photos ORDER BY used_at DESC, id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent usage: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*pool.UsageEntry, error) {
		var e pool.UsageEntry
		err := row.Scan(&e.ID, &e.UsedAt)
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing recent usage: %w", err)
	}
	return entries, nil
}

func (t *PostgresTracker) SetCaption(ctx context.Context, id, text string) error {
	_, err := t.db.Exec(ctx, `
		INSERT INTO captions (photo_id, caption, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (photo_id) DO UPDATE SET caption = excluded.caption, updated_at = excluded.updated_at`,
		id, text, t.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving caption for %s: %w", id, err)
	}
	return nil
}

func (t *PostgresTracker) Caption(ctx context.Context, id string) (string, bool, error) {
	var text string
	err := t.db.QueryRow(ctx, "SELECT caption FROM captions WHERE photo_id = $1", id).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading caption for %s: %w", id, err)
	}
	return text, true, nil
}

func (t *PostgresTracker) CaptionCount(ctx context.Context) (int, error) {
	var n int
	if err := t.db.QueryRow(ctx, "SELECT COUNT(*) FROM captions").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting captions: %w", err)
	}
	return n, nil
}

func (t *PostgresTracker) Ping(ctx context.Context) error {
	return t.db.Ping(ctx)
}

// MigrateUp brings the schema to the latest version over a dedicated
// connection handle.
func (t *PostgresTracker) MigrateUp() error {
	sqlDB := stdlib.OpenDB(*t.db.Config().ConnConfig)
	defer sqlDB.Close()
	return migrations.MigrateUp(sqlDB, migrations.DialectPostgres)
}

// CheckMigrations verifies the database schema is up-to-date.
func (t *PostgresTracker) CheckMigrations() error {
	sqlDB := stdlib.OpenDB(*t.db.Config().ConnConfig)
	defer sqlDB.Close()
	return migrations.CheckDBMigrationStatus(sqlDB, migrations.DialectPostgres)
}

// Close closes the connection pool.
func (t *PostgresTracker) Close() error {
	t.db.Close()
	return nil
}

// Compile-time check that PostgresTracker implements pool.Tracker interface
var _ pool.Tracker = (*PostgresTracker)(nil)
