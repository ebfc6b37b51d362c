package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"photopool/internal/pool"
)

// FileSystemStore is a filesystem-based implementation of the Store interface.
// Every photo is one file directly under root, named by its identifier.
// Temporary files start with a dot and are never listed.
//
// Photos are addressed either through public_base_url (when an HTTP server
// fronts the directory, e.g. the serve command's /photos route) or as file://
// URLs for single-host setups.
type FileSystemStore struct {
	name          string
	root          string
	publicBaseURL string
	idgen         pool.IDGenerator
}

// NewFileSystemStore creates a new filesystem store rooted at the given path,
// creating the directory if needed. If idgen is nil, random UUID identifiers are used.
func NewFileSystemStore(name, root, publicBaseURL string, idgen pool.IDGenerator) (*FileSystemStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	if idgen == nil {
		idgen = pool.UUIDGenerator{}
	}

	return &FileSystemStore{
		name:          name,
		root:          abs,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		idgen:         idgen,
	}, nil
}

// Put writes data to a new file using atomic write (temp file + rename).
func (s *FileSystemStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	id := s.idgen.New()
	if err := checkID(id); err != nil {
		return "", err
	}
	destPath := filepath.Join(s.root, id)

	if _, err := os.Stat(destPath); err == nil {
		return "", fmt.Errorf("photo %s already exists", id)
	}

	tmpFile, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return "", fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return id, nil
}

// List returns the identifiers of all stored photos in lexical order.
func (s *FileSystemStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading store directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	slices.Sort(ids)
	return ids, nil
}

// URL returns the public URL of a photo, or a file:// URL when no public
// base URL is configured.
func (s *FileSystemStore) URL(ctx context.Context, id string) (string, error) {
	p, err := s.path(id)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", pool.ErrPhotoNotFound, id)
		}
		return "", fmt.Errorf("checking photo %s: %w", id, err)
	}

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/photos/" + url.PathEscape(id), nil
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String(), nil
}

// Open returns the stored bytes of a photo.
func (s *FileSystemStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", pool.ErrPhotoNotFound, id)
		}
		return nil, fmt.Errorf("failed to open photo: %w", err)
	}
	return f, nil
}

// ValidateSetup verifies that the store directory is accessible and writable.
func (s *FileSystemStore) ValidateSetup(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store root is not a directory: %s", s.root)
	}

	probe, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("store root not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return nil
}

// Root returns the absolute directory holding the photos.
func (s *FileSystemStore) Root() string {
	return s.root
}

func (s *FileSystemStore) path(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id), nil
}

// Compile-time check that FileSystemStore implements pool.Store interface
var _ pool.Store = (*FileSystemStore)(nil)
