package store

import (
	"fmt"
	"time"

	"github.com/lazypower/synapse/internal/graph"
)

// Mutation is one durable change queued by the engine. Mutations are applied
// in the order they were produced.
type Mutation interface {
	// Table names the table the mutation writes to.
	Table() string
	apply(x execer) error
}

type NodeUpsert struct{ Node graph.Node }

func (m NodeUpsert) Table() string        { return "graph_nodes" }
func (m NodeUpsert) apply(x execer) error { return upsertNode(x, &m.Node) }
func (m NodeUpsert) String() string       { return "node_upsert:" + m.Node.ID }

type NodeTouch struct {
	ID string
	At time.Time
}

func (m NodeTouch) Table() string        { return "graph_nodes" }
func (m NodeTouch) apply(x execer) error { return touchNode(x, m.ID, m.At) }
func (m NodeTouch) String() string       { return "node_touch:" + m.ID }

type EdgeUpsert struct{ Edge graph.Edge }

func (m EdgeUpsert) Table() string        { return "graph_edges" }
func (m EdgeUpsert) apply(x execer) error { return upsertEdge(x, &m.Edge) }
func (m EdgeUpsert) String() string       { return "edge_upsert:" + m.Edge.ID }

type EdgeDelete struct{ ID string }

func (m EdgeDelete) Table() string        { return "graph_edges" }
func (m EdgeDelete) apply(x execer) error { return deleteEdge(x, m.ID) }
func (m EdgeDelete) String() string       { return "edge_delete:" + m.ID }

type ClusterReplace struct{ Clusters []graph.Cluster }

func (m ClusterReplace) Table() string        { return "knowledge_clusters" }
func (m ClusterReplace) apply(x execer) error { return replaceClusters(x, m.Clusters) }
func (m ClusterReplace) String() string {
	return fmt.Sprintf("cluster_replace:%d", len(m.Clusters))
}

type InferenceRecord struct{ Op InferenceOp }

func (m InferenceRecord) Table() string        { return "inference_operations" }
func (m InferenceRecord) apply(x execer) error { return insertInferenceOp(x, &m.Op) }
func (m InferenceRecord) String() string       { return "inference:" + m.Op.OperationType }

type UsageRecord struct{ Usage APIUsage }

func (m UsageRecord) Table() string        { return "api_usage_metrics" }
func (m UsageRecord) apply(x execer) error { return insertUsage(x, &m.Usage) }
func (m UsageRecord) String() string       { return "usage:" + m.Usage.Provider }

// Apply writes a batch of mutations in a single transaction. Nothing from the
// batch is committed if any mutation fails.
func (db *DB) Apply(muts []Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range muts {
		if err := m.apply(tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ApplyOne writes a single mutation outside any batch.
func (db *DB) ApplyOne(m Mutation) error {
	return m.apply(db)
}
