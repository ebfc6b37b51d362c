package database

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"photopool/internal/pool"
)

// testClock is a settable clock. testutil imports this package, so the
// shared stub cannot be used here.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// trackerFactory opens an empty, migrated tracker driven by clock.
type trackerFactory func(t *testing.T, clock pool.Clock) pool.Tracker

// runTrackerSuite exercises the pool.Tracker contract against one backend.
func runTrackerSuite(t *testing.T, newTracker trackerFactory) {
	ctx := context.Background()

	t.Run("MarkUsed adds once", func(t *testing.T) {
		tr := newTracker(t, newTestClock())

		added, err := tr.MarkUsed(ctx, "a.jpg")
		if err != nil {
			t.Fatalf("MarkUsed() error = %v", err)
		}
		if !added {
			t.Error("first MarkUsed() = false, want true")
		}

		added, err = tr.MarkUsed(ctx, "a.jpg")
		if err != nil {
			t.Fatalf("second MarkUsed() error = %v", err)
		}
		if added {
			t.Error("second MarkUsed() = true, want false")
		}

		used, err := tr.IsUsed(ctx, "a.jpg")
		if err != nil {
			t.Fatalf("IsUsed() error = %v", err)
		}
		if !used {
			t.Error("IsUsed(a.jpg) = false, want true")
		}

		used, err = tr.IsUsed(ctx, "b.jpg")
		if err != nil {
			t.Fatalf("IsUsed() error = %v", err)
		}
		if used {
			t.Error("IsUsed(b.jpg) = true, want false")
		}
	})

	t.Run("UnusedOf preserves order", func(t *testing.T) {
		tr := newTracker(t, newTestClock())
		for _, id := range []string{"b.jpg", "d.jpg", "stale.jpg"} {
			if _, err := tr.MarkUsed(ctx, id); err != nil {
				t.Fatalf("MarkUsed(%s) error = %v", id, err)
			}
		}

		got, err := tr.UnusedOf(ctx, []string{"e.jpg", "a.jpg", "b.jpg", "c.jpg", "d.jpg"})
		if err != nil {
			t.Fatalf("UnusedOf() error = %v", err)
		}
		want := []string{"e.jpg", "a.jpg", "c.jpg"}
		if !slices.Equal(got, want) {
			t.Errorf("UnusedOf() = %v, want %v", got, want)
		}

		ids, err := tr.UsedIDs(ctx)
		if err != nil {
			t.Fatalf("UsedIDs() error = %v", err)
		}
		if !slices.Equal(ids, []string{"b.jpg", "d.jpg", "stale.jpg"}) {
			t.Errorf("UsedIDs() = %v", ids)
		}
	})

	t.Run("Reset clears and records", func(t *testing.T) {
		clock := newTestClock()
		tr := newTracker(t, clock)

		last, err := tr.LastReset(ctx)
		if err != nil {
			t.Fatalf("LastReset() error = %v", err)
		}
		if last != nil {
			t.Errorf("LastReset() before any reset = %+v, want nil", last)
		}

		for _, id := range []string{"a.jpg", "b.jpg"} {
			if _, err := tr.MarkUsed(ctx, id); err != nil {
				t.Fatalf("MarkUsed(%s) error = %v", id, err)
			}
		}
		if err := tr.SetCaption(ctx, "a.jpg", "kept across resets"); err != nil {
			t.Fatalf("SetCaption() error = %v", err)
		}

		clock.Advance(time.Hour)
		cleared, err := tr.Reset(ctx)
		if err != nil {
			t.Fatalf("Reset() error = %v", err)
		}
		if cleared != 2 {
			t.Errorf("Reset() cleared = %d, want 2", cleared)
		}

		ids, err := tr.UsedIDs(ctx)
		if err != nil {
			t.Fatalf("UsedIDs() error = %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("UsedIDs() after reset = %v, want empty", ids)
		}

		last, err = tr.LastReset(ctx)
		if err != nil {
			t.Fatalf("LastReset() error = %v", err)
		}
		if last == nil {
			t.Fatal("LastReset() = nil after reset")
		}
		if last.Cleared != 2 {
			t.Errorf("LastReset().Cleared = %d, want 2", last.Cleared)
		}
		if !last.ResetAt.Equal(clock.Now()) {
			t.Errorf("LastReset().ResetAt = %v, want %v", last.ResetAt, clock.Now())
		}

		if _, ok, _ := tr.Caption(ctx, "a.jpg"); !ok {
			t.Error("Reset() removed a caption")
		}

		// Resetting an empty set is still recorded.
		cleared, err = tr.Reset(ctx)
		if err != nil {
			t.Fatalf("second Reset() error = %v", err)
		}
		if cleared != 0 {
			t.Errorf("second Reset() cleared = %d, want 0", cleared)
		}
	})

	t.Run("RecentUsage newest first", func(t *testing.T) {
		clock := newTestClock()
		tr := newTracker(t, clock)

		for _, id := range []string{"first.jpg", "second.jpg", "third.jpg"} {
			if _, err := tr.MarkUsed(ctx, id); err != nil {
				t.Fatalf("MarkUsed(%s) error = %v", id, err)
			}
			clock.Advance(time.Minute)
		}

		entries, err := tr.RecentUsage(ctx, 2)
		if err != nil {
			t.Fatalf("RecentUsage() error = %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("len(RecentUsage(2)) = %d, want 2", len(entries))
		}
		if entries[0].ID != "third.jpg" || entries[1].ID != "second.jpg" {
			t.Errorf("RecentUsage(2) = [%s %s], want [third.jpg second.jpg]", entries[0].ID, entries[1].ID)
		}
		wantAt := newTestClock().Now().Add(2 * time.Minute)
		if !entries[0].UsedAt.Equal(wantAt) {
			t.Errorf("UsedAt = %v, want %v", entries[0].UsedAt, wantAt)
		}

		all, err := tr.RecentUsage(ctx, 0)
		if err != nil {
			t.Fatalf("RecentUsage(0) error = %v", err)
		}
		if len(all) != 3 {
			t.Errorf("len(RecentUsage(0)) = %d, want 3", len(all))
		}
	})

	t.Run("captions upsert", func(t *testing.T) {
		tr := newTracker(t, newTestClock())

		if _, ok, err := tr.Caption(ctx, "a.jpg"); err != nil || ok {
			t.Fatalf("Caption() on missing = (_, %v, %v), want (_, false, nil)", ok, err)
		}

		if err := tr.SetCaption(ctx, "a.jpg", "first"); err != nil {
			t.Fatalf("SetCaption() error = %v", err)
		}
		if err := tr.SetCaption(ctx, "a.jpg", "second"); err != nil {
			t.Fatalf("SetCaption() overwrite error = %v", err)
		}
		if err := tr.SetCaption(ctx, "b.jpg", "other"); err != nil {
			t.Fatalf("SetCaption() error = %v", err)
		}

		text, ok, err := tr.Caption(ctx, "a.jpg")
		if err != nil {
			t.Fatalf("Caption() error = %v", err)
		}
		if !ok || text != "second" {
			t.Errorf("Caption(a.jpg) = (%q, %v), want (%q, true)", text, ok, "second")
		}

		n, err := tr.CaptionCount(ctx)
		if err != nil {
			t.Fatalf("CaptionCount() error = %v", err)
		}
		if n != 2 {
			t.Errorf("CaptionCount() = %d, want 2", n)
		}
	})

	t.Run("concurrent MarkUsed has one winner", func(t *testing.T) {
		tr := newTracker(t, newTestClock())

		const callers = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				added, err := tr.MarkUsed(ctx, "contested.jpg")
				if err != nil {
					t.Errorf("MarkUsed() error = %v", err)
					return
				}
				if added {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Errorf("MarkUsed() reported %d winners, want 1", wins)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		tr := newTracker(t, newTestClock())
		if err := tr.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}

func TestSQLiteTracker(t *testing.T) {
	runTrackerSuite(t, func(t *testing.T, clock pool.Clock) pool.Tracker {
		t.Helper()
		tr, err := NewSQLiteTracker(":memory:", clock)
		if err != nil {
			t.Fatalf("NewSQLiteTracker() error = %v", err)
		}
		t.Cleanup(func() { tr.Close() })
		if err := tr.MigrateUp(); err != nil {
			t.Fatalf("MigrateUp() error = %v", err)
		}
		return tr
	})
}

func TestSQLiteTracker_File(t *testing.T) {
	path := fmt.Sprintf("%s/%s", t.TempDir(), DBFileName)
	tr, err := NewSQLiteTracker(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteTracker() error = %v", err)
	}
	defer tr.Close()

	if tr.Path() != path {
		t.Errorf("Path() = %q, want %q", tr.Path(), path)
	}
	if err := tr.CheckMigrations(); err == nil {
		t.Error("CheckMigrations() on fresh file = nil, want error")
	}
	if err := tr.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := tr.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() after MigrateUp = %v", err)
	}
}
