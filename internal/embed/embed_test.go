package embed

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lazypower/synapse/internal/config"
	"github.com/lazypower/synapse/internal/telemetry"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestFallbackDeterministic(t *testing.T) {
	snap := telemetry.Snapshot{Memory: telemetry.Memory{RSS: 4096}}

	a := Fallback("entrepreneurship domain", snap)
	b := Fallback("entrepreneurship domain", snap)
	require.Len(t, a, Dimensions)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-5)

	assert.NotEqual(t, a, Fallback("technology domain", snap), "text changes the vector")
	other := telemetry.Snapshot{Memory: telemetry.Memory{RSS: 8192}}
	assert.NotEqual(t, a, Fallback("entrepreneurship domain", other), "telemetry changes the vector")
}

func TestFallbackEmptyText(t *testing.T) {
	vec := Fallback("", telemetry.Snapshot{})
	require.Len(t, vec, Dimensions)
	assert.InDelta(t, 1.0, norm(vec), 1e-5)
}

func TestResize(t *testing.T) {
	short := resize([]float64{3, 4})
	require.Len(t, short, Dimensions)
	assert.InDelta(t, 0.6, short[0], 1e-6)
	assert.InDelta(t, 0.8, short[1], 1e-6)
	assert.Zero(t, short[2])

	long := make([]float64, 768)
	long[0] = 1
	long[700] = 1
	out := resize(long)
	require.Len(t, out, Dimensions)
	assert.InDelta(t, 1.0, out[0], 1e-6)
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(config.EmbeddingConfig{Provider: "none"})
	assert.ErrorIs(t, err, ErrUnconfigured)

	_, err = NewProvider(config.EmbeddingConfig{Provider: "openai"})
	assert.Error(t, err, "openai without key or url")

	p, err := NewProvider(config.EmbeddingConfig{Provider: "openai", APIKey: "k", Model: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, "openai:text-embedding-3-small", p.Name())

	p, err = NewProvider(config.EmbeddingConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama:nomic-embed-text", p.Name())

	_, err = NewProvider(config.EmbeddingConfig{Provider: "bogus"})
	assert.Error(t, err)
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		vec := make([]float64, 768)
		vec[1] = 2
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings":        [][]float64{vec},
			"prompt_eval_count": 4,
		})
	}))
	defer srv.Close()

	res, err := NewOllama(srv.URL, "nomic-embed-text").Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, res.Vector, Dimensions)
	assert.InDelta(t, 1.0, res.Vector[1], 1e-6)
	assert.Equal(t, 4, res.Tokens)
}

func TestOllamaEmbedStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, "missing").Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, Dimensions, req["dimensions"])

		vec := make([]float32, Dimensions)
		vec[3] = 1
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vec}},
			"usage":  map[string]any{"prompt_tokens": 2, "total_tokens": 2},
		})
	}))
	defer srv.Close()

	res, err := NewOpenAI(srv.URL, "", "").Embed(context.Background(), "hi there")
	require.NoError(t, err)
	require.Len(t, res.Vector, Dimensions)
	assert.InDelta(t, 1.0, res.Vector[3], 1e-6)
	assert.Equal(t, 2, res.Tokens)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	mock := &Mock{Err: errors.New("provider down")}
	b := NewBreaker(mock, time.Minute, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := b.Embed(context.Background(), "x")
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, mock.CallCount(), "open breaker does not call through")
}

func TestBreakerPassesResult(t *testing.T) {
	mock := &Mock{Tokens: 7}
	b := NewBreaker(mock, time.Minute, zap.NewNop())

	res, err := b.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 7, res.Tokens)
	assert.Equal(t, "mock", b.Name())
}
