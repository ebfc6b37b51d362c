package caption

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"photopool/internal/config"
)

func TestGeminiModel_Caption(t *testing.T) {
	var gotBody map[string]any
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"A lighthouse in fog"}]}}]}`)
	}))
	defer srv.Close()

	ctx := context.Background()
	m, err := NewGeminiModel(ctx, "test-key", "gemini-test", srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("NewGeminiModel() error = %v", err)
	}

	img := []byte{0xff, 0xd8, 0xff, 0xe0}
	text, err := m.Caption(ctx, img, "Caption this concisely")
	if err != nil {
		t.Fatalf("Caption() error = %v", err)
	}
	if text != "A lighthouse in fog" {
		t.Errorf("Caption() = %q, want %q", text, "A lighthouse in fog")
	}

	if !strings.Contains(gotPath, "gemini-test:generateContent") {
		t.Errorf("request path = %q, want generateContent for gemini-test", gotPath)
	}

	raw, _ := json.Marshal(gotBody)
	if !strings.Contains(string(raw), base64.StdEncoding.EncodeToString(img)) {
		t.Errorf("request body does not carry the inline image: %s", raw)
	}
	if !strings.Contains(string(raw), "Caption this concisely") {
		t.Errorf("request body does not carry the prompt: %s", raw)
	}
	if m.Name() != "gemini/gemini-test" {
		t.Errorf("Name() = %q", m.Name())
	}
}

func TestGeminiModel_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`},
		{name: "no text", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			ctx := context.Background()
			m, err := NewGeminiModel(ctx, "test-key", "gemini-test", srv.URL, srv.Client())
			if err != nil {
				t.Fatalf("NewGeminiModel() error = %v", err)
			}
			if _, err := m.Caption(ctx, []byte{1}, "p"); err == nil {
				t.Error("Caption() error = nil, want error")
			}
		})
	}
}

func TestNewGeminiModel_RequiresKey(t *testing.T) {
	if _, err := NewGeminiModel(context.Background(), "", "m", "", nil); err == nil {
		t.Error("NewGeminiModel() without api key should fail")
	}
}

func TestOllamaModel_Caption(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Stream   *bool  `json:"stream"`
		Messages []struct {
			Role    string   `json:"role"`
			Content string   `json:"content"`
			Images  []string `json:"images"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"llava","created_at":"2024-01-15T10:30:00Z","message":{"role":"assistant","content":"Two dogs on a beach"},"done":true}`)
	}))
	defer srv.Close()

	m, err := NewOllamaModel(srv.URL+"/ignored/path", "llava", srv.Client())
	if err != nil {
		t.Fatalf("NewOllamaModel() error = %v", err)
	}

	img := []byte{0xff, 0xd8, 0xff}
	text, err := m.Caption(context.Background(), img, "Caption this concisely")
	if err != nil {
		t.Fatalf("Caption() error = %v", err)
	}
	if text != "Two dogs on a beach" {
		t.Errorf("Caption() = %q, want %q", text, "Two dogs on a beach")
	}

	if req.Model != "llava" {
		t.Errorf("request model = %q, want %q", req.Model, "llava")
	}
	if req.Stream == nil || *req.Stream {
		t.Error("request did not disable streaming")
	}
	if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
		t.Fatalf("request messages = %+v, want one message with one image", req.Messages)
	}
	if req.Messages[0].Images[0] != base64.StdEncoding.EncodeToString(img) {
		t.Error("request image does not match the input bytes")
	}
}

func TestNewOllamaModel_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:11434", "://bad"} {
		if _, err := NewOllamaModel(u, "llava", nil); err == nil {
			t.Errorf("NewOllamaModel(%q) error = nil, want error", u)
		}
	}
}

func TestNewFetcherFromConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     config.CaptionConfig
		wantErr bool
	}{
		{
			name: "gemini",
			cfg:  config.CaptionConfig{Type: "gemini", APIKey: "k", Model: "gemini-2.5-flash", MaxAttempts: 3, Timeout: config.Duration{Duration: time.Second}},
		},
		{
			name: "ollama",
			cfg:  config.CaptionConfig{Type: "ollama", BaseURL: "http://localhost:11434", Model: "llava"},
		},
		{
			name:    "gemini without key",
			cfg:     config.CaptionConfig{Type: "gemini", Model: "gemini-2.5-flash"},
			wantErr: true,
		},
		{
			name:    "unknown type",
			cfg:     config.CaptionConfig{Type: "openai"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFetcherFromConfig(ctx, tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFetcherFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if f.settings.MaxAttempts != DefaultMaxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", f.settings.MaxAttempts, DefaultMaxAttempts)
			}
		})
	}
}
