package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"photopool/internal/photo"
)

// NoCaption is shown in place of a caption that was never generated.
const NoCaption = "No caption available"

// IngestResult describes a stored submission. Captioned is false when the photo
// was stored but captioning failed (degraded ingestion).
type IngestResult struct {
	ID        string
	URL       string
	Caption   string
	Captioned bool
}

// Draw is one photo handed out by the distribution endpoint.
type Draw struct {
	ID      string
	URL     string
	Caption string
}

// Status summarizes the pool for operators.
type Status struct {
	Total     int // photos in the store
	Used      int // stored photos served this cycle
	Unused    int // stored photos still eligible
	Stale     int // used ids with no stored photo
	Captioned int
	LastReset *ResetRecord
}

// Service is the orchestration layer for ingestion and distribution.
// It is constructed once at startup and shared by every request handler.
type Service struct {
	store     Store
	tracker   Tracker
	captioner Captioner
	selector  *Selector
	logger    Logger

	// mu serializes used-set mutation: unused lookup, selection and mark-used
	// form one unit per draw, and resets never interleave with a draw.
	mu sync.Mutex
}

// NewService creates a new Service with the provided dependencies.
func NewService(store Store, tracker Tracker, captioner Captioner, selector *Selector, logger Logger) *Service {
	if selector == nil {
		selector = NewSelector()
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Service{
		store:     store,
		tracker:   tracker,
		captioner: captioner,
		selector:  selector,
		logger:    logger,
	}
}

// Ingest normalizes raw image bytes, stores them and attaches a caption.
//
// Once the photo is stored the submission has succeeded: a caption failure only
// clears IngestResult.Captioned. Decode and storage failures are returned as
// *IngestError and leave nothing persisted. The store write is not abandoned if
// ctx is cancelled mid-flight.
func (s *Service) Ingest(ctx context.Context, raw []byte) (*IngestResult, error) {
	normalized, err := photo.Normalize(raw)
	if err != nil {
		ingestionsTotal.WithLabelValues("rejected").Inc()
		s.logger.Error("normalizing submission", "op", "ingest", "size", len(raw), "error", err)
		return nil, &IngestError{Stage: StageNormalize, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}

	storeCtx := context.WithoutCancel(ctx)
	id, err := s.store.Put(storeCtx, normalized, photo.ContentType)
	if err != nil {
		ingestionsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("storing photo", "op", "ingest", "error", err)
		return nil, &IngestError{Stage: StageStore, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)}
	}
	s.logger.Info("photo stored", "op", "ingest", "id", id, "size", len(normalized))

	result := &IngestResult{ID: id}

	url, err := s.store.URL(storeCtx, id)
	if err != nil {
		ingestionsTotal.WithLabelValues("degraded").Inc()
		s.logger.Error("resolving photo url", "op", "ingest", "id", id, "error", err)
		return result, nil
	}
	result.URL = url

	caption, ok := s.captioner.Fetch(ctx, url)
	if !ok {
		ingestionsTotal.WithLabelValues("degraded").Inc()
		s.logger.Warn("caption unavailable", "op", "ingest", "id", id)
		return result, nil
	}

	if err := s.tracker.SetCaption(storeCtx, id, caption); err != nil {
		ingestionsTotal.WithLabelValues("degraded").Inc()
		s.logger.Error("saving caption", "op", "ingest", "id", id, "error", err)
		return result, nil
	}

	ingestionsTotal.WithLabelValues("captioned").Inc()
	result.Caption = caption
	result.Captioned = true
	return result, nil
}

// Draw hands out one photo that has not been served in the current cycle and
// marks it used. It returns ErrPoolExhausted when every stored photo was served.
// Concurrent callers never receive the same photo.
func (s *Service) Draw(ctx context.Context) (*Draw, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		drawsTotal.WithLabelValues("error").Inc()
		s.logger.Error("listing photos", "op", "draw", "error", err)
		return nil, fmt.Errorf("listing photos: %w: %w", ErrStoreUnavailable, err)
	}

	id, url, err := s.claim(ctx, ids)
	if errors.Is(err, ErrPoolExhausted) {
		drawsTotal.WithLabelValues("exhausted").Inc()
		s.logger.Info("pool exhausted", "op", "draw", "stored", len(ids))
		return nil, err
	}
	if err != nil {
		drawsTotal.WithLabelValues("error").Inc()
		s.logger.Error("claiming photo", "op", "draw", "error", err)
		return nil, err
	}

	caption, ok, err := s.tracker.Caption(ctx, id)
	if err != nil {
		// The photo is already marked used; serve it rather than lose it.
		s.logger.Warn("looking up caption", "op", "draw", "id", id, "error", err)
	}
	if !ok {
		caption = NoCaption
	}

	drawsTotal.WithLabelValues("served").Inc()
	s.logger.Info("photo served", "op", "draw", "id", id)
	return &Draw{ID: id, URL: url, Caption: caption}, nil
}

// claim selects an unused photo among ids, resolves its URL and marks it
// used. A photo is only marked once its URL is known, so a store failure never
// burns a photo for the rest of the cycle; such ids are skipped for this draw.
// The mark is a conditional insert: if another process sharing the tracker got
// there first, the id is dropped and another is selected.
func (s *Service) claim(ctx context.Context, ids []string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates, err := s.tracker.UnusedOf(ctx, ids)
	if err != nil {
		return "", "", fmt.Errorf("computing unused photos: %w", err)
	}

	var urlErr error
	for len(candidates) > 0 {
		id := s.selector.Select(candidates)
		candidates = slices.DeleteFunc(candidates, func(c string) bool { return c == id })

		url, err := s.store.URL(ctx, id)
		if err != nil {
			s.logger.Warn("resolving photo url", "op", "draw", "id", id, "error", err)
			urlErr = fmt.Errorf("resolving url for %s: %w: %w", id, ErrStoreUnavailable, err)
			continue
		}

		added, err := s.tracker.MarkUsed(ctx, id)
		if err != nil {
			return "", "", fmt.Errorf("marking %s used: %w", id, err)
		}
		if added {
			return id, url, nil
		}

		drawRacesTotal.Inc()
		s.logger.Warn("photo claimed by another draw", "op", "draw", "id", id)
	}

	// Unused photos exist but none could be addressed: that is a store
	// problem, not an exhausted pool.
	if urlErr != nil {
		return "", "", urlErr
	}
	return "", "", ErrPoolExhausted
}

// Reset clears the used set so every stored photo is eligible again.
// It returns the number of entries cleared.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared, err := s.tracker.Reset(ctx)
	if err != nil {
		s.logger.Error("resetting used set", "op", "reset", "error", err)
		return 0, fmt.Errorf("resetting used set: %w", err)
	}

	resetsTotal.Inc()
	s.logger.Info("used set cleared", "op", "reset", "cleared", cleared)
	return cleared, nil
}

// Status reports pool counts. The store listing is ground truth: used ids
// without a stored photo are counted as stale and never affect the pool.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w: %w", ErrStoreUnavailable, err)
	}

	usedIDs, err := s.tracker.UsedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing used photos: %w", err)
	}
	used := make(map[string]bool, len(usedIDs))
	for _, id := range usedIDs {
		used[id] = true
	}

	st := &Status{Total: len(ids)}
	for _, id := range ids {
		if used[id] {
			st.Used++
		} else {
			st.Unused++
		}
	}
	st.Stale = len(usedIDs) - st.Used

	if st.Captioned, err = s.tracker.CaptionCount(ctx); err != nil {
		return nil, fmt.Errorf("counting captions: %w", err)
	}
	if st.LastReset, err = s.tracker.LastReset(ctx); err != nil {
		return nil, fmt.Errorf("loading last reset: %w", err)
	}

	return st, nil
}

// History returns the most recently served photos of the current cycle, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*UsageEntry, error) {
	entries, err := s.tracker.RecentUsage(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("loading usage history: %w", err)
	}
	return entries, nil
}

// Ready verifies the tracker database is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.tracker.Ping(ctx)
}
