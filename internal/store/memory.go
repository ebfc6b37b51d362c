package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"sync"

	"photopool/internal/pool"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It is useful for testing and for trying the bot without any storage setup.
// Photos are reachable from outside the process only through the server's
// /photos/{id} route, so serving requires a public base URL pointing at it.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	name          string
	publicBaseURL string
	idgen         pool.IDGenerator
	photos        map[string][]byte // id -> jpeg bytes
	mu            sync.RWMutex
}

// NewMemoryStore creates a new in-memory store with the given name.
// With a publicBaseURL, URLs take the form <publicBaseURL>/photos/<id>;
// without one they are memory:// URLs that only identify the photo.
// If idgen is nil, random UUID identifiers are used.
func NewMemoryStore(name, publicBaseURL string, idgen pool.IDGenerator) *MemoryStore {
	if idgen == nil {
		idgen = pool.UUIDGenerator{}
	}
	return &MemoryStore{
		name:          name,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		idgen:         idgen,
		photos:        make(map[string][]byte),
	}
}

// Put stores a copy of data under a new identifier.
func (m *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	id := m.idgen.New()
	if err := checkID(id); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.photos[id]; exists {
		return "", fmt.Errorf("photo %s already exists", id)
	}
	m.photos[id] = bytes.Clone(data)
	return id, nil
}

// List returns every stored identifier in lexical order.
func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.photos))
	for id := range m.photos {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// URL returns the photo's public URL, or a memory:// URL naming the store
// and photo when no public base is configured.
func (m *MemoryStore) URL(ctx context.Context, id string) (string, error) {
	m.mu.RLock()
	_, ok := m.photos[id]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", pool.ErrPhotoNotFound, id)
	}
	if m.publicBaseURL != "" {
		return m.publicBaseURL + "/photos/" + url.PathEscape(id), nil
	}
	u := url.URL{Scheme: "memory", Host: m.name, Path: "/" + id}
	return u.String(), nil
}

// Open returns the stored bytes of a photo.
func (m *MemoryStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.photos[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pool.ErrPhotoNotFound, id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes a photo. It exists for tests that simulate stale used ids.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.photos, id)
}

// ValidateSetup always succeeds for in-memory store.
func (m *MemoryStore) ValidateSetup(ctx context.Context) error {
	return nil
}

// Compile-time check that MemoryStore implements pool.Store interface
var _ pool.Store = (*MemoryStore)(nil)
