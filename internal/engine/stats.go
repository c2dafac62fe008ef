package engine

import (
	"context"
	"time"

	"github.com/lazypower/synapse/internal/graph"
	"github.com/lazypower/synapse/internal/telemetry"
)

// Stats is an aggregate view of the engine.
type Stats struct {
	Nodes         int                `json:"nodes"`
	Edges         int                `json:"edges"`
	InferredEdges int                `json:"inferred_edges"`
	Clusters      int                `json:"clusters"`
	Inferences    int                `json:"inferences"`
	PendingWrites int                `json:"pending_writes"`
	Embedder      string             `json:"embedder"`
	Cycles        int64              `json:"cycles"`
	LastCycle     *time.Time         `json:"last_cycle,omitempty"`
	Telemetry     telemetry.Snapshot `json:"telemetry"`
}

// Stats returns counts and the current telemetry.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	snap := e.tel.Snapshot()

	unlock, err := e.lock.RLock(ctx, "stats")
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Nodes:     e.g.NodeCount(),
		Edges:     e.g.EdgeCount(),
		Telemetry: snap,
		Embedder:  "fallback",
		Cycles:    e.sched.Cycles(),
	}
	for _, edge := range e.g.Edges() {
		if edge.Type == graph.EdgeTypeInferred {
			st.InferredEdges++
		}
	}
	unlock()

	e.mu.Lock()
	st.Clusters = len(e.clusters)
	st.Inferences = len(e.inferLog)
	e.mu.Unlock()

	if e.emb != nil {
		st.Embedder = e.emb.Name()
	}
	if e.sync != nil {
		st.PendingWrites = e.sync.pendingCount()
	}
	if last := e.sched.Last(); last != nil {
		t := last.StartedAt
		st.LastCycle = &t
	}
	return st, nil
}
