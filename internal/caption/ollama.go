package caption

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaModel captions images with a local vision model served by Ollama.
type OllamaModel struct {
	client *api.Client
	model  string
}

// NewOllamaModel creates a client for the Ollama server at baseURL.
// The environment (OLLAMA_HOST) is ignored.
func NewOllamaModel(baseURL, model string, httpClient *http.Client) (*OllamaModel, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid ollama url %q: scheme and host required", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &OllamaModel{client: api.NewClient(base, httpClient), model: model}, nil
}

func (o *OllamaModel) Name() string {
	return "ollama/" + o.model
}

func (o *OllamaModel) Caption(ctx context.Context, image []byte, prompt string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(image)},
			},
		},
		Stream: &stream,
	}

	var text string
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return text, nil
}
