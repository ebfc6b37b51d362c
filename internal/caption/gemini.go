package caption

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// GeminiModel captions images with the Gemini generateContent API.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel creates a Gemini client. baseURL overrides the API endpoint
// and is empty in production.
func NewGeminiModel(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini requires an api key")
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiModel{client: client, model: model}, nil
}

func (g *GeminiModel) Name() string {
	return "gemini/" + g.model
}

// Caption sends the JPEG inline with the prompt and returns the first
// candidate's text.
func (g *GeminiModel) Caption(ctx context.Context, image []byte, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, "image/jpeg"),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("response has no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			return part.Text, nil
		}
	}
	return "", fmt.Errorf("first candidate has no text")
}
