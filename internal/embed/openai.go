package embed

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAI calls an OpenAI-compatible /embeddings endpoint. A custom base URL
// points it at LiteLLM or another gateway.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI embedding provider.
func NewOpenAI(baseURL, apiKey, model string) *OpenAI {
	// gateways accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (o *OpenAI) Name() string { return "openai:" + o.model }

// Embed requests a Dimensions-length embedding for text.
func (o *OpenAI) Embed(ctx context.Context, text string) (Result, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: Dimensions,
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return Result{}, fmt.Errorf("openai returned no embeddings")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float64, len(raw))
	for i, v := range raw {
		vec[i] = float64(v)
	}
	return Result{Vector: resize(vec), Tokens: resp.Usage.TotalTokens}, nil
}
