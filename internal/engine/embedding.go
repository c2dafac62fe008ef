package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/synapse/internal/embed"
	"github.com/lazypower/synapse/internal/store"
	"github.com/lazypower/synapse/internal/telemetry"
)

// embed asks the provider for a vector within the embed timeout and falls back
// to the deterministic vector on any failure. The usage row describes the
// provider call, or is nil when no provider is configured.
func (e *Engine) embed(ctx context.Context, text string, snap telemetry.Snapshot) ([]float32, *store.APIUsage) {
	if e.emb == nil {
		e.m.EmbedCalls.WithLabelValues("fallback", "unconfigured").Inc()
		return embed.Fallback(text, snap), nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.emb.Embed(ctx, text)
	if err == nil && len(res.Vector) != embed.Dimensions {
		err = fmt.Errorf("provider returned %d dimensions, want %d", len(res.Vector), embed.Dimensions)
	}
	usage := &store.APIUsage{
		Provider:       e.emb.Name(),
		Operation:      "embed",
		TokensUsed:     res.Tokens,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		Success:        err == nil,
		CreatedAt:      e.now(),
	}
	if err != nil {
		usage.ErrorDetails = err.Error()
		e.m.EmbedCalls.WithLabelValues(e.emb.Name(), "error").Inc()
		e.log.Warn("embedding provider failed, using fallback",
			zap.String("kind", string(KindProvider)),
			zap.String("provider", e.emb.Name()),
			zap.Error(err))
		return embed.Fallback(text, snap), usage
	}
	e.m.EmbedCalls.WithLabelValues(e.emb.Name(), "ok").Inc()
	return append([]float32(nil), res.Vector...), usage
}
