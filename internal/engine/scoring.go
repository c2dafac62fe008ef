package engine

import (
	"math"

	"github.com/lazypower/synapse/internal/config"
	"github.com/lazypower/synapse/internal/graph"
	"github.com/lazypower/synapse/internal/telemetry"
)

// nodeWeight favors new nodes when heap pressure is low: 1.0 on an idle heap,
// 0.5 on a full one.
func nodeWeight(snap telemetry.Snapshot) float64 {
	return graph.Clamp(0.5 + 0.5*(1-snap.MemoryPressure()))
}

// edgeStrength is the configured base plus a variance term seeded by the
// fractional part of the 1m load average, which spans [-variance, +variance].
func edgeStrength(cfg config.EngineConfig, snap telemetry.Snapshot) float64 {
	load := snap.LoadAvg1m
	frac := load - math.Floor(load)
	return graph.Clamp(cfg.BaseStrength + cfg.StrengthVariance*(frac-0.5)*2)
}

// inferredStrength composes two edge strengths.
func inferredStrength(cfg config.EngineConfig, a, b float64) float64 {
	return a * b * cfg.InferenceFactor
}

// reinforced applies the boost and caps at 1.0.
func reinforced(cfg config.EngineConfig, s float64) float64 {
	return graph.Clamp(math.Min(1.0, s*cfg.ReinforceBoost))
}

// CosineSimilarity computes the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
