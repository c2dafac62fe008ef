package engine

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/synapse/internal/graph"
	"github.com/lazypower/synapse/internal/store"
	"github.com/lazypower/synapse/internal/telemetry"
)

const opTransitive = "transitive_inference"

// Inference is one audit record of the inference log.
type Inference struct {
	OperationType string             `json:"operation_type"`
	SourceEdges   []string           `json:"source_edges"`
	ResultEdge    string             `json:"result_edge"`
	Confidence    float64            `json:"confidence"`
	Telemetry     telemetry.Snapshot `json:"telemetry"`
	CreatedAt     time.Time          `json:"created_at"`
}

// runInference composes every pair of edges e1, e2 with e1.To == e2.From into
// a candidate e1.From -> e2.To. A candidate becomes an "inferred" edge when
// its strength clears the threshold and the endpoints are not already
// connected in either direction. Edges created earlier in the same pass count
// as existing, so each candidate pair yields at most one edge.
//
// The cross product is quadratic in the edge count; graphs are expected to
// stay in the hundreds of edges. A two-hop walk over adjacency would replace it
// if that stops holding.
func (e *Engine) runInference(ctx context.Context) (int, error) {
	snap := e.tel.Snapshot()

	unlock, err := e.lock.Lock(ctx, "inference")
	if err != nil {
		return 0, err
	}
	defer unlock()

	edges := e.g.Edges()
	var (
		created []graph.Edge
		records []Inference
		muts    []store.Mutation
	)
	for _, e1 := range edges {
		for _, e2 := range edges {
			if e1.To != e2.From || e1.From == e2.To {
				continue
			}
			strength := inferredStrength(e.cfg, e1.Strength, e2.Strength)
			if !(strength > e.cfg.InferenceThreshold) {
				continue
			}
			if e.g.Connected(e1.From, e2.To) {
				continue
			}

			now := e.now()
			edge := graph.Edge{
				ID:        graph.InferredEdgeID(e1.From, e2.To),
				From:      e1.From,
				To:        e2.To,
				Type:      graph.EdgeTypeInferred,
				Strength:  graph.Clamp(strength),
				CreatedAt: now,
			}
			if _, err := e.g.PutEdge(&edge); err != nil {
				e.log.Warn("inferred edge rejected", zap.String("id", edge.ID), zap.Error(err))
				continue
			}
			rec := Inference{
				OperationType: opTransitive,
				SourceEdges:   []string{e1.ID, e2.ID},
				ResultEdge:    edge.ID,
				Confidence:    strength,
				Telemetry:     snap,
				CreatedAt:     now,
			}
			created = append(created, edge)
			records = append(records, rec)
			muts = append(muts, store.EdgeUpsert{Edge: edge}, store.InferenceRecord{Op: auditRow(rec, edge)})
		}
	}
	e.persist(muts...)
	edgeCount := e.g.EdgeCount()

	if len(records) > 0 {
		e.mu.Lock()
		e.inferLog = append(e.inferLog, records...)
		if over := len(e.inferLog) - maxInferenceLog; over > 0 {
			e.inferLog = append([]Inference(nil), e.inferLog[over:]...)
		}
		e.mu.Unlock()
	}

	for _, edge := range created {
		e.m.EdgesInferred.Inc()
		e.bus.publish(EventEdgeInferred, edge.ID, edge.Strength, edge.CreatedAt)
	}
	e.m.Edges.Set(float64(edgeCount))
	return len(created), nil
}

func auditRow(rec Inference, edge graph.Edge) store.InferenceOp {
	src, _ := json.Marshal(struct {
		SourceEdges []string           `json:"source_edges"`
		Telemetry   telemetry.Snapshot `json:"telemetry"`
	}{rec.SourceEdges, rec.Telemetry})
	res, _ := json.Marshal(struct {
		Edge     string  `json:"edge"`
		From     string  `json:"from"`
		To       string  `json:"to"`
		Strength float64 `json:"strength"`
	}{edge.ID, edge.From, edge.To, edge.Strength})
	return store.InferenceOp{
		OperationType: rec.OperationType,
		SourceData:    src,
		ResultData:    res,
		Confidence:    rec.Confidence,
		CreatedAt:     rec.CreatedAt,
	}
}
