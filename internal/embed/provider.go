// Package embed maps text to fixed-length vectors. Remote providers may fail at
// any time; callers are expected to fall back to Fallback, which is a pure
// function of its inputs.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/lazypower/synapse/internal/config"
)

// Dimensions is the fixed embedding length used across the graph.
const Dimensions = 256

// ErrUnconfigured is returned when no remote provider is set up.
var ErrUnconfigured = errors.New("embedding provider not configured")

// Result is a successful embedding call.
type Result struct {
	Vector []float32
	Tokens int
}

// Provider generates embeddings for text.
type Provider interface {
	Embed(ctx context.Context, text string) (Result, error)
	Name() string
}

// NewProvider creates a provider based on the embedding config. The "none"
// provider yields ErrUnconfigured so the caller can run on fallback vectors.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY or a base_url")
		}
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "ollama":
		url := cfg.BaseURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" || model == "text-embedding-3-small" {
			model = "nomic-embed-text"
		}
		return NewOllama(url, model), nil
	case "none", "":
		return nil, ErrUnconfigured
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
}

// resize truncates or zero-pads vec to Dimensions and L2-normalizes the result.
func resize(vec []float64) []float32 {
	out := make([]float32, Dimensions)
	for i := 0; i < Dimensions && i < len(vec); i++ {
		out[i] = float32(vec[i])
	}
	normalize(out)
	return out
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
