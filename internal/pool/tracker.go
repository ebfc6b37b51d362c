package pool

import (
	"context"
	"time"
)

// UsageEntry is a single served photo in the current cycle.
type UsageEntry struct {
	ID     string
	UsedAt time.Time
}

// ResetRecord describes one operator reset of the used set.
type ResetRecord struct {
	ResetAt time.Time
	Cleared int64
}

// Tracker persists the set of already-served photos and the photo→caption map.
// Both survive process restarts. Implementations must be safe for concurrent use.
type Tracker interface {
	// IsUsed reports whether the photo was served in the current cycle.
	IsUsed(ctx context.Context, id string) (bool, error)

	// MarkUsed adds id to the used set. It reports whether the id was newly
	// added; marking an already used id is a no-op that returns false.
	MarkUsed(ctx context.Context, id string) (bool, error)

	// UnusedOf returns the ids not in the used set, preserving input order.
	UnusedOf(ctx context.Context, ids []string) ([]string, error)

	// UsedIDs returns every id in the used set.
	UsedIDs(ctx context.Context) ([]string, error)

	// Reset clears the used set, starting a new cycle, and returns how many
	// entries were removed.
	Reset(ctx context.Context) (int64, error)

	// LastReset returns the most recent reset, or nil if none happened.
	LastReset(ctx context.Context) (*ResetRecord, error)

	// RecentUsage returns the most recently served photos, newest first.
	RecentUsage(ctx context.Context, limit int) ([]*UsageEntry, error)

	// SetCaption stores the caption for a photo, replacing any previous one.
	SetCaption(ctx context.Context, id, text string) error

	// Caption returns the caption for a photo; ok is false if none exists.
	Caption(ctx context.Context, id string) (text string, ok bool, err error)

	// CaptionCount returns how many photos have a caption.
	CaptionCount(ctx context.Context) (int, error)

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}
