package embed

import (
	"hash/fnv"

	"github.com/lazypower/synapse/internal/telemetry"
)

// Fallback derives a deterministic unit vector from text and a telemetry
// snapshot. The same inputs always produce the same vector.
func Fallback(text string, snap telemetry.Snapshot) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64() ^ snap.Memory.RSS

	vec := make([]float32, Dimensions)
	for i := range vec {
		state = splitmix64(state)
		// top 24 bits → [0,1) → [-1,1)
		vec[i] = float32(state>>40)/float32(1<<24)*2 - 1
	}
	normalize(vec)
	return vec
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	z := x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
