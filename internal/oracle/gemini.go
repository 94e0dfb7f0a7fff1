package oracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiGenerator implements Generator against the Gemini API.
type GeminiGenerator struct {
	apiKey string
	model  string
}

// NewGeminiGenerator creates a Gemini-backed generator. Returns nil when the
// API key is empty so the adapter reports ORACLE_NOT_CONFIGURED instead of
// attempting doomed network calls.
func NewGeminiGenerator(apiKey, model string) *GeminiGenerator {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiGenerator{apiKey: apiKey, model: model}
}

// Generate sends one prompt (plus an optional inline file) to the model and
// returns the raw response text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, file *FilePart) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}

	parts := []*genai.Part{{Text: prompt}}
	if file != nil {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: file.MIMEType,
				Data:     file.Data,
			},
		})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	return resp.Text(), nil
}
