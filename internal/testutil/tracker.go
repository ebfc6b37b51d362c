package testutil

import (
	"testing"

	"photopool/internal/database"
	"photopool/internal/pool"
)

// NewTestTracker creates a new in-memory SQLite tracker with schema applied.
// The tracker is automatically closed when the test completes.
func NewTestTracker(t *testing.T) *database.SQLiteTracker {
	t.Helper()
	return NewTestTrackerWithClock(t, FixedClock())
}

// NewTestTrackerWithClock is NewTestTracker with a caller-controlled clock.
func NewTestTrackerWithClock(t *testing.T, clock pool.Clock) *database.SQLiteTracker {
	t.Helper()

	tr, err := database.NewSQLiteTracker(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open tracker: %v", err)
	}
	t.Cleanup(func() {
		tr.Close()
	})

	if err := tr.MigrateUp(); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return tr
}
