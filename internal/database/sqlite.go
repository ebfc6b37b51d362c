package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"photopool/internal/database/migrations"
	"photopool/internal/pool"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteTracker implements the pool.Tracker interface using SQLite.
type SQLiteTracker struct {
	db    *sql.DB
	clock pool.Clock
	path  string
}

// NewSQLiteTracker opens a SQLite database.
// path can be a file path or ":memory:" for an in-memory database.
// If clock is nil, the real clock is used.
func NewSQLiteTracker(path string, clock pool.Clock) (*SQLiteTracker, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	t := NewSQLiteTrackerFromDB(db, clock)
	t.path = path
	return t, nil
}

// NewSQLiteTrackerFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteTrackerFromDB(db *sql.DB, clock pool.Clock) *SQLiteTracker {
	if clock == nil {
		clock = pool.RealClock{}
	}
	return &SQLiteTracker{db: db, clock: clock}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time. This also keeps ":memory:" to a single database,
	// since every connection to it gets its own.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

func (s *SQLiteTracker) IsUsed(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM used_photos WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking used photo %s: %w", id, err)
	}
	return true, nil
}

func (s *SQLiteTracker) MarkUsed(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO used_photos (id, used_at) VALUES (?, ?) ON CONFLICT (id) DO NOTHING",
		id, s.clock.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("marking photo %s used: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking photo %s used: %w", id, err)
	}
	return n == 1, nil
}

func (s *SQLiteTracker) UnusedOf(ctx context.Context, ids []string) ([]string, error) {
	used, err := s.UsedIDs(ctx)
	if err != nil {
		return nil, err
	}
	return unusedOf(ids, used), nil
}

func (s *SQLiteTracker) UsedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM used_photos ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing used photos: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning used photo: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing used photos: %w", err)
	}
	return ids, nil
}

// Reset clears the used set and records the reset in a single transaction.
func (s *SQLiteTracker) Reset(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM used_photos")
	if err != nil {
		return 0, fmt.Errorf("clearing used photos: %w", err)
	}
	cleared, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clearing used photos: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO pool_resets (reset_at, cleared) VALUES (?, ?)",
		s.clock.Now().UTC(), cleared)
	if err != nil {
		return 0, fmt.Errorf("recording reset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return cleared, nil
}

func (s *SQLiteTracker) LastReset(ctx context.Context) (*pool.ResetRecord, error) {
	var r pool.ResetRecord
	err := s.db.QueryRowContext(ctx,
		"SELECT reset_at, cleared FROM pool_resets ORDER BY id DESC LIMIT 1",
	).Scan(&r.ResetAt, &r.Cleared)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading last reset: %w", err)
	}
	return &r, nil
}

func (s *SQLiteTracker) RecentUsage(ctx context.Context, limit int) ([]*pool.UsageEntry, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, used_at FROM used_photos ORDER BY used_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent usage: %w", err)
	}
	defer rows.Close()

	var entries []*pool.UsageEntry
	for rows.Next() {
		var e pool.UsageEntry
		if err := rows.Scan(&e.ID, &e.UsedAt); err != nil {
			return nil, fmt.Errorf("scanning usage entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing recent usage: %w", err)
	}
	return entries, nil
}

func (s *SQLiteTracker) SetCaption(ctx context.Context, id, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO captions (photo_id, caption, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (photo_id) DO UPDATE SET caption = excluded.caption, updated_at = excluded.updated_at`,
		id, text, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving caption for %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteTracker) Caption(ctx context.Context, id string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, "SELECT caption FROM captions WHERE photo_id = ?", id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading caption for %s: %w", id, err)
	}
	return text, true, nil
}

func (s *SQLiteTracker) CaptionCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM captions").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting captions: %w", err)
	}
	return n, nil
}

func (s *SQLiteTracker) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteTracker) Path() string {
	return s.path
}

// MigrateUp brings the schema to the latest version.
func (s *SQLiteTracker) MigrateUp() error {
	return migrations.MigrateUp(s.db, migrations.DialectSQLite)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteTracker) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db, migrations.DialectSQLite)
}

// Close closes the database connection.
func (s *SQLiteTracker) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// unusedOf filters ids down to those not in used, preserving order.
func unusedOf(ids, used []string) []string {
	seen := make(map[string]struct{}, len(used))
	for _, id := range used {
		seen[id] = struct{}{}
	}
	unused := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			unused = append(unused, id)
		}
	}
	return unused
}

// Compile-time check that SQLiteTracker implements pool.Tracker interface
var _ pool.Tracker = (*SQLiteTracker)(nil)
