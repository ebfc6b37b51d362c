package caption

import (
	"context"
	"fmt"

	"photopool/internal/config"
	"photopool/internal/pool"
)

// NewFetcherFromConfig creates the configured Model and wraps it in a Fetcher.
func NewFetcherFromConfig(ctx context.Context, cfg config.CaptionConfig, logger pool.Logger) (*Fetcher, error) {
	httpClient := NewHTTPClient()

	var (
		model Model
		err   error
	)
	switch cfg.Type {
	case "gemini":
		model, err = NewGeminiModel(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, httpClient)
	case "ollama":
		model, err = NewOllamaModel(cfg.BaseURL, cfg.Model, httpClient)
	default:
		return nil, fmt.Errorf("unknown caption type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return NewFetcher(model, Settings{
		MaxAttempts: cfg.MaxAttempts,
		Timeout:     cfg.Timeout.Duration,
		Prompt:      cfg.Prompt,
		HTTPClient:  httpClient,
	}, logger), nil
}
