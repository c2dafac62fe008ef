package engine

import (
	"context"

	"github.com/lazypower/synapse/internal/graph"
	"github.com/lazypower/synapse/internal/store"
)

// runClustering finds connected components over edges stronger than
// cluster_strength by breadth-first search from each unvisited node, in node
// insertion order. Visited marks span the whole pass, so a node lands in at
// most one cluster. Components of one node are dropped.
func (e *Engine) runClustering(ctx context.Context) ([]graph.Cluster, error) {
	unlock, err := e.lock.RLock(ctx, "clustering")
	if err != nil {
		return nil, err
	}
	clusters := e.findClusters()
	unlock()

	e.mu.Lock()
	e.clusters = clusters
	e.mu.Unlock()

	e.persist(store.ClusterReplace{Clusters: clusters})
	e.m.Clusters.Set(float64(len(clusters)))
	e.bus.publish(EventClustersUpdated, "", float64(len(clusters)), e.now())
	return clusters, nil
}

// findClusters must run with the graph lock held.
func (e *Engine) findClusters() []graph.Cluster {
	strong := make(map[string][]string)
	for _, edge := range e.g.Edges() {
		if edge.Strength <= e.cfg.ClusterStrength || edge.From == edge.To {
			continue
		}
		strong[edge.From] = append(strong[edge.From], edge.To)
		strong[edge.To] = append(strong[edge.To], edge.From)
	}

	now := e.now()
	visited := make(map[string]bool)
	var clusters []graph.Cluster
	for _, start := range e.g.Nodes() {
		if visited[start.ID] {
			continue
		}
		visited[start.ID] = true
		members := []string{start.ID}
		for i := 0; i < len(members); i++ {
			for _, next := range strong[members[i]] {
				if !visited[next] {
					visited[next] = true
					members = append(members, next)
				}
			}
		}
		if len(members) < 2 {
			continue
		}
		clusters = append(clusters, graph.Cluster{
			ID:        len(clusters),
			Theme:     e.theme(members),
			Members:   members,
			Coherence: e.coherence(members),
			CreatedAt: now,
		})
	}
	return clusters
}

// coherence averages the strength of every edge, of any strength, whose
// endpoints are both members. Unconnected pairs do not count.
func (e *Engine) coherence(members []string) float64 {
	in := make(map[string]bool, len(members))
	for _, id := range members {
		in[id] = true
	}
	var sum float64
	var n int
	for _, edge := range e.g.Edges() {
		if edge.From != edge.To && in[edge.From] && in[edge.To] {
			sum += edge.Strength
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// theme is "<type>_cluster" for a uniform cluster, otherwise
// "<first>_<second>_cluster" from the first two distinct types in member order.
func (e *Engine) theme(members []string) string {
	var types []string
	seen := make(map[string]bool)
	for _, id := range members {
		n, ok := e.g.Node(id)
		if !ok || seen[n.Type] {
			continue
		}
		seen[n.Type] = true
		types = append(types, n.Type)
		if len(types) == 2 {
			break
		}
	}
	switch len(types) {
	case 0:
		return "cluster"
	case 1:
		return types[0] + "_cluster"
	default:
		return types[0] + "_" + types[1] + "_cluster"
	}
}
