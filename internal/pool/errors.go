package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode means a submission could not be decoded as an image.
	ErrDecode = errors.New("image could not be decoded")

	// ErrStoreUnavailable means the object store failed or could not be reached.
	ErrStoreUnavailable = errors.New("object store unavailable")

	// ErrPhotoNotFound means no stored photo has the requested identifier.
	ErrPhotoNotFound = errors.New("photo not found")

	// ErrPoolExhausted means every stored photo was already served this cycle.
	// It is a normal outcome, not a failure.
	ErrPoolExhausted = errors.New("no unused photos")

	// ErrUnauthorized means the caller is not the allow-listed identity or did
	// not present the shared secret.
	ErrUnauthorized = errors.New("unauthorized")
)

// Stage names the ingestion step at which a submission failed.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageStore     Stage = "store"
)

// IngestError is a fatal ingestion failure: nothing was persisted.
type IngestError struct {
	Stage Stage
	Err   error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingestion failed at %s: %v", e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }
