package pool

import (
	"context"
	"io"
)

// Store is the object store holding normalized photo bytes.
// It owns the canonical list of photo identifiers.
type Store interface {
	// Put stores data under a freshly generated identifier and returns it.
	Put(ctx context.Context, data []byte, contentType string) (string, error)

	// List returns the identifiers of every stored photo.
	List(ctx context.Context) ([]string, error)

	// URL returns a retrievable URL for the photo. Depending on the deployment this
	// is either a permanent public path or a time-limited signed URL.
	URL(ctx context.Context, id string) (string, error)

	// Open returns the stored bytes of a photo. The caller must close the reader.
	Open(ctx context.Context, id string) (io.ReadCloser, error)

	// ValidateSetup verifies that the store is reachable and properly configured.
	ValidateSetup(ctx context.Context) error
}

// Captioner derives a caption for a stored photo. It is best-effort: a false
// second return value means no caption could be produced.
type Captioner interface {
	Fetch(ctx context.Context, photoURL string) (string, bool)
}
