// Package fs discovers local photo files for bulk ingestion.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// photoExtensions are the file types picked up when expanding a directory.
// Files named explicitly are always taken and left to the decoder to judge.
var photoExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// IsPhotoName reports whether name has a photo file extension.
func IsPhotoName(name string) bool {
	return slices.Contains(photoExtensions, strings.ToLower(filepath.Ext(name)))
}

// Finder expands command-line arguments into photo file paths.
type Finder struct {
	patterns []string
}

// NewFinder creates a Finder that skips files matching patterns in addition
// to the defaults and any ignore file found in a scanned directory.
func NewFinder(patterns []string) *Finder {
	return &Finder{patterns: patterns}
}

// Find resolves each argument. Regular files are returned as given (made
// absolute); directories are scanned for photos, descending into
// subdirectories when recursive is set. The result is sorted and has no
// duplicates.
func (f *Finder) Find(args []string, recursive bool) ([]string, error) {
	var found []string
	for _, arg := range args {
		absPath, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving absolute path: %w", err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("stat path: %w", err)
		}

		switch mode := info.Mode(); {
		case mode.IsRegular():
			found = append(found, absPath)
		case mode.IsDir():
			paths, err := f.scan(absPath, recursive)
			if err != nil {
				return nil, err
			}
			found = append(found, paths...)
		default:
			return nil, fmt.Errorf("not a file or directory: %s", absPath)
		}
	}

	slices.Sort(found)
	return slices.Compact(found), nil
}

func (f *Finder) scan(root string, recursive bool) ([]string, error) {
	extra, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append(slices.Clone(defaultIgnorePatterns), f.patterns...), extra...)
	matcher := NewIgnoreMatcher(patterns)

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive || matcher.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel) || !IsPhotoName(d.Name()) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return paths, nil
}
