package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/lazypower/synapse/internal/store"
)

// MaintenanceResult counts what one maintenance pass changed.
type MaintenanceResult struct {
	Pressure   float64  `json:"memory_pressure"`
	Pruned     []string `json:"pruned"`
	Reinforced []string `json:"reinforced"`
}

// runMaintenance prunes weak, unused edges while memory pressure is above the
// threshold, then boosts heavily traversed edges. Pruning removes at most
// prune_batch edges per pass, taken in edge insertion order.
func (e *Engine) runMaintenance(ctx context.Context) (MaintenanceResult, error) {
	snap := e.tel.Snapshot()
	res := MaintenanceResult{Pressure: snap.MemoryPressure()}

	unlock, err := e.lock.Lock(ctx, "maintenance")
	if err != nil {
		return res, err
	}
	defer unlock()

	var muts []store.Mutation
	if res.Pressure > e.cfg.PrunePressure {
		for _, edge := range e.g.Edges() {
			if len(res.Pruned) >= e.cfg.PruneBatch {
				break
			}
			if edge.Strength < e.cfg.PruneStrength && edge.TraversalCount < e.cfg.PruneTraversals {
				res.Pruned = append(res.Pruned, edge.ID)
			}
		}
		for _, id := range res.Pruned {
			e.g.DeleteEdge(id)
			muts = append(muts, store.EdgeDelete{ID: id})
		}
	}

	for _, edge := range e.g.Edges() {
		if edge.TraversalCount <= e.cfg.ReinforceTraversals {
			continue
		}
		boosted := reinforced(e.cfg, edge.Strength)
		if boosted == edge.Strength {
			continue
		}
		edge.Strength = boosted
		res.Reinforced = append(res.Reinforced, edge.ID)
		muts = append(muts, store.EdgeUpsert{Edge: *edge})
	}
	e.persist(muts...)

	now := e.now()
	for _, id := range res.Pruned {
		e.m.EdgesPruned.Inc()
		e.bus.publish(EventEdgePruned, id, 0, now)
	}
	for _, id := range res.Reinforced {
		e.m.EdgesReinforced.Inc()
		edge, _ := e.g.Edge(id)
		e.bus.publish(EventEdgeReinforced, id, edge.Strength, now)
	}
	e.m.Edges.Set(float64(e.g.EdgeCount()))

	if len(res.Pruned) > 0 {
		e.log.Info("pruned weak edges",
			zap.Float64("memory_pressure", res.Pressure), zap.Strings("edges", res.Pruned))
	}
	return res, nil
}
