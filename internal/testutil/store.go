package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"photopool/internal/pool"
	"photopool/internal/store"
)

// NewTestStore creates an in-memory store handing out StubID(1), StubID(2), ...
// and memory:// URLs.
func NewTestStore() *store.MemoryStore {
	return store.NewMemoryStore("test-store", "", NewStubIDGenerator())
}

// StubID is the n-th id from a StubIDGenerator. It has the shape of the
// UUID ids pool.UUIDGenerator produces.
func StubID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d.jpg", n)
}

// StubIDGenerator is a pool.IDGenerator yielding StubID(1), StubID(2), ...
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return StubID(g.n)
}

// ErrStoreDown is returned by every FailingStore operation.
var ErrStoreDown = errors.New("store is down")

// FailingStore wraps a Store and fails the operations whose flags are set.
type FailingStore struct {
	pool.Store
	FailPut  bool
	FailList bool
	FailURL  bool
}

func (f *FailingStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if f.FailPut {
		return "", ErrStoreDown
	}
	return f.Store.Put(ctx, data, contentType)
}

func (f *FailingStore) List(ctx context.Context) ([]string, error) {
	if f.FailList {
		return nil, ErrStoreDown
	}
	return f.Store.List(ctx)
}

func (f *FailingStore) URL(ctx context.Context, id string) (string, error) {
	if f.FailURL {
		return "", ErrStoreDown
	}
	return f.Store.URL(ctx, id)
}
