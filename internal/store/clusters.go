package store

import (
	"encoding/json"
	"fmt"

	"github.com/lazypower/synapse/internal/graph"
)

// replaceClusters swaps the stored cluster set for the result of one pass.
func replaceClusters(x execer, clusters []graph.Cluster) error {
	if _, err := x.Exec(`DELETE FROM knowledge_clusters`); err != nil {
		return fmt.Errorf("clear clusters: %w", err)
	}
	for _, c := range clusters {
		ids, err := json.Marshal(c.Members)
		if err != nil {
			return fmt.Errorf("encode cluster %d members: %w", c.ID, err)
		}
		if _, err := x.Exec(`
			INSERT INTO knowledge_clusters (id, theme, node_ids, coherence, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, c.ID, c.Theme, string(ids), c.Coherence, toMillis(c.CreatedAt)); err != nil {
			return fmt.Errorf("insert cluster %d: %w", c.ID, err)
		}
	}
	return nil
}

// ReplaceClusters stores the clusters of the latest pass in one transaction.
func (db *DB) ReplaceClusters(clusters []graph.Cluster) error {
	return db.Apply([]Mutation{ClusterReplace{Clusters: clusters}})
}

// ListClusters returns the stored clusters ordered by id.
func (db *DB) ListClusters() ([]graph.Cluster, error) {
	rows, err := db.Query(`SELECT id, theme, node_ids, coherence, created_at FROM knowledge_clusters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var out []graph.Cluster
	for rows.Next() {
		var c graph.Cluster
		var ids string
		var created int64
		if err := rows.Scan(&c.ID, &c.Theme, &ids, &c.Coherence, &created); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &c.Members); err != nil {
			return nil, fmt.Errorf("decode cluster %d members: %w", c.ID, err)
		}
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
