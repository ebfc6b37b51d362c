package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName lists extra patterns for a photo directory, one per line.
const IgnoreFileName = ".photopoolignore"

// defaultIgnorePatterns are always applied: hidden files and the ignore file.
var defaultIgnorePatterns = []string{".*", IgnoreFileName}

type ignorePattern struct {
	pattern   string
	matchPath bool // match the relative path rather than the basename
}

// IgnoreMatcher decides which files a directory scan skips. Patterns
// containing '/' are matched against the path relative to the scanned root;
// all others against the basename, so "*_thumb.jpg" applies at any depth.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw pattern lines, dropping blanks and '#' comments.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		m.patterns = append(m.patterns, ignorePattern{pattern: raw, matchPath: strings.Contains(raw, "/")})
	}
	return m
}

// Match reports whether relativePath is ignored. Malformed patterns never match.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	slashed := filepath.ToSlash(relativePath)
	base := filepath.Base(relativePath)
	for _, p := range m.patterns {
		name := base
		if p.matchPath {
			name = slashed
		}
		if ok, err := filepath.Match(p.pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil when there
// is none.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
