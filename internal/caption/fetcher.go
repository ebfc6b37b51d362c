// Package caption derives short captions for stored photos from a
// multimodal model, retrying transient failures.
package caption

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"photopool/internal/photo"
	"photopool/internal/pool"
)

// Defaults for Settings fields left zero.
const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 30 * time.Second
	DefaultPrompt      = "Caption this concisely"
)

// maxDownloadSize bounds the photo download. Stored photos are re-encoded
// JPEGs, far below this.
const maxDownloadSize = 50 << 20

var errEmptyCaption = errors.New("model returned an empty caption")

// Model is a captioning backend: it turns one image and a prompt into text.
type Model interface {
	Name() string
	Caption(ctx context.Context, image []byte, prompt string) (string, error)
}

// Settings tunes a Fetcher.
type Settings struct {
	MaxAttempts int
	Timeout     time.Duration // per attempt, download included
	Prompt      string
	HTTPClient  *http.Client // used to download photos
}

// Fetcher implements pool.Captioner on top of a Model.
type Fetcher struct {
	model    Model
	settings Settings
	logger   pool.Logger
}

// NewFetcher creates a Fetcher. Zero settings take the package defaults.
func NewFetcher(model Model, settings Settings, logger pool.Logger) *Fetcher {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = DefaultMaxAttempts
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	if settings.Prompt == "" {
		settings.Prompt = DefaultPrompt
	}
	if settings.HTTPClient == nil {
		settings.HTTPClient = NewHTTPClient()
	}
	if logger == nil {
		logger = pool.NewNopLogger()
	}
	return &Fetcher{model: model, settings: settings, logger: logger}
}

// NewHTTPClient returns the client used for photo downloads. It also serves
// file:// URLs, which the filesystem store hands out when it has no public base.
func NewHTTPClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))
	return &http.Client{Transport: t}
}

// Fetch downloads the photo at photoURL and asks the model for a caption.
// Every failure is retried immediately, up to MaxAttempts. ok is false once all
// attempts failed or the caller's context ended between attempts.
//
// An attempt already in flight is not cut short by ctx; it is bounded by the
// per-attempt timeout instead.
func (f *Fetcher) Fetch(ctx context.Context, photoURL string) (string, bool) {
	logURL := redactURL(photoURL)

	for attempt := 1; attempt <= f.settings.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			f.logger.Warn("caption abandoned", "url", logURL, "attempt", attempt, "error", ctx.Err())
			captionFailuresTotal.Inc()
			return "", false
		}

		text, err := f.attempt(ctx, photoURL)
		if err == nil {
			captionAttemptsTotal.WithLabelValues("success").Inc()
			f.logger.Debug("caption generated", "url", logURL, "attempt", attempt, "model", f.model.Name())
			return text, true
		}

		captionAttemptsTotal.WithLabelValues("failure").Inc()
		f.logger.Warn("caption attempt failed",
			"url", logURL, "attempt", attempt, "max_attempts", f.settings.MaxAttempts, "error", err)
	}

	captionFailuresTotal.Inc()
	f.logger.Error("caption failed after all attempts", "url", logURL, "attempts", f.settings.MaxAttempts)
	return "", false
}

func (f *Fetcher) attempt(ctx context.Context, photoURL string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.settings.Timeout)
	defer cancel()

	raw, err := f.download(ctx, photoURL)
	if err != nil {
		return "", err
	}

	img, err := photo.CompressForModel(raw)
	if err != nil {
		// The model may still cope with the original bytes.
		f.logger.Warn("compressing for model failed, sending original", "url", redactURL(photoURL), "error", err)
		img = raw
	}

	text, err := f.model.Caption(ctx, img, f.settings.Prompt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", f.model.Name(), err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyCaption
	}
	return text, nil
}

func (f *Fetcher) download(ctx context.Context, photoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	resp, err := f.settings.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading photo: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("reading photo: %w", err)
	}
	return data, nil
}

// redactURL drops the query string, which carries signatures on presigned URLs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

// Compile-time check that Fetcher implements pool.Captioner interface
var _ pool.Captioner = (*Fetcher)(nil)
