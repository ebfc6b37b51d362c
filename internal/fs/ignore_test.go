package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# drafts", "*.raw"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.raw" {
			t.Errorf("expected *.raw, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies path vs basename patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*_thumb.jpg", "rejects/*"})
		if m.patterns[0].matchPath {
			t.Error("*_thumb.jpg should not be a path pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("rejects/* should be a path pattern")
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{"basename glob in root", []string{"*_thumb.jpg"}, "beach_thumb.jpg", true},
		{"basename glob in subdirectory", []string{"*_thumb.jpg"}, filepath.Join("2024", "beach_thumb.jpg"), true},
		{"basename glob misses other names", []string{"*_thumb.jpg"}, "beach.jpg", false},
		{"hidden files by default pattern", defaultIgnorePatterns, filepath.Join("trip", ".DS_Store"), true},
		{"ignore file by default pattern", defaultIgnorePatterns, IgnoreFileName, true},
		{"path pattern matches", []string{"rejects/*"}, filepath.Join("rejects", "blurry.jpg"), true},
		{"path pattern misses other dirs", []string{"rejects/*"}, filepath.Join("keepers", "blurry.jpg"), false},
		{"character class", []string{"IMG_00[0-4]?.jpg"}, "IMG_0031.jpg", true},
		{"no patterns", nil, "a.jpg", false},
		{"empty path", []string{"*.jpg"}, "", false},
		{"bad pattern is skipped", []string{"[", "*.png"}, "a.png", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewIgnoreMatcher(tt.patterns).Match(tt.relativePath); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads raw lines", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(path, []byte("*.raw\n# screenshots\n\nScreenshot*\nrejects/*\n"), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		// Comments and blanks are kept here; NewIgnoreMatcher drops them.
		if len(patterns) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}
		if m := NewIgnoreMatcher(patterns); len(m.patterns) != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", len(m.patterns))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil || patterns != nil {
			t.Errorf("ParseIgnoreFile() = %v, %v; want nil, nil", patterns, err)
		}
	})
}
