package testutil

import (
	"context"
	"sync"
)

// FakeCaptioner returns a fixed caption, or fails when Fail is set.
// It records the URLs it was asked about. Safe for concurrent use.
type FakeCaptioner struct {
	Text string
	Fail bool

	mu   sync.Mutex
	urls []string
}

// NewFakeCaptioner creates a FakeCaptioner that always returns text.
func NewFakeCaptioner(text string) *FakeCaptioner {
	return &FakeCaptioner{Text: text}
}

func (f *FakeCaptioner) Fetch(ctx context.Context, photoURL string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, photoURL)
	if f.Fail {
		return "", false
	}
	return f.Text, true
}

// URLs returns every URL passed to Fetch, in call order.
func (f *FakeCaptioner) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}
