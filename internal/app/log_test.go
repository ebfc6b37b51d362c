package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTabHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "serve-1",
			level:   slog.LevelInfo,
			message: "photo stored",
			want:    "2024-06-15T14:30:45Z\tINFO\tserve-1\tphoto stored\n",
		},
		{
			name:    "debug level",
			opID:    "draw-2",
			level:   slog.LevelDebug,
			message: "app initialized",
			want:    "2024-06-15T14:30:45Z\tDEBUG\tdraw-2\tapp initialized\n",
		},
		{
			name:    "with record attrs",
			opID:    "ingest-3",
			level:   slog.LevelWarn,
			message: "caption attempt failed",
			attrs:   []slog.Attr{slog.String("id", "a.jpg"), slog.Int("attempt", 2)},
			want:    "2024-06-15T14:30:45Z\tWARN\tingest-3\tcaption attempt failed\tid=a.jpg\tattempt=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newTabHandler(&buf, slog.LevelDebug, tt.opID)

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestTabHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTabHandler(&buf, slog.LevelInfo, "op-1")

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "chat")}).(*tabHandler)

	r := slog.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "reply", 0)
	r.AddAttrs(slog.Int64("chat_id", 42))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "\tcomponent=chat\tchat_id=42\n") {
		t.Errorf("expected pre-set attrs before record attrs, got: %q", got)
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestTabHandler_Enabled(t *testing.T) {
	h := newTabHandler(&bytes.Buffer{}, slog.LevelWarn, "op")

	tests := []struct {
		level slog.Level
		want  bool
	}{
		{slog.LevelDebug, false},
		{slog.LevelInfo, false},
		{slog.LevelWarn, true},
		{slog.LevelError, true},
	}
	for _, tt := range tests {
		if got := h.Enabled(context.Background(), tt.level); got != tt.want {
			t.Errorf("Enabled(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(dir, "info", "test-op")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Debug("hidden")
	logger.Info("visible", "id", "a.jpg")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	got := string(data)
	if strings.Contains(got, "hidden") {
		t.Errorf("debug line written at info level: %q", got)
	}
	if !strings.Contains(got, "\tINFO\ttest-op\tvisible\tid=a.jpg\n") {
		t.Errorf("log file = %q, want the info line", got)
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, _, err := newLogger(t.TempDir(), "verbose", "op"); err == nil {
		t.Error("newLogger() error = nil for unknown level")
	}
}
