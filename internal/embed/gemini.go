package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the embedding model used when none is configured.
const DefaultGeminiModel = "gemini-embedding-001"

// Gemini embeds text through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed embedder. The API key comes from
// configuration; an empty model selects DefaultGeminiModel.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Embed requests an embedding for the text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embed content: empty embedding for model %s", g.model)
	}
	values := resp.Embeddings[0].Values
	vector := make([]float64, len(values))
	for i, v := range values {
		vector[i] = float64(v)
	}
	return vector, nil
}
