package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/synapse/internal/graph"
)

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func upsertNode(x execer, n *graph.Node) error {
	props, err := json.Marshal(n.Properties)
	if err != nil {
		return fmt.Errorf("encode properties for %s: %w", n.ID, err)
	}
	emb := n.Embedding
	if emb == nil {
		emb = []float32{}
	}
	embJSON, err := json.Marshal(emb)
	if err != nil {
		return fmt.Errorf("encode embedding for %s: %w", n.ID, err)
	}

	_, err = x.Exec(`
		INSERT INTO graph_nodes (id, type, properties, embedding, weight, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			properties = excluded.properties,
			embedding = excluded.embedding,
			weight = excluded.weight,
			created_at = excluded.created_at,
			last_accessed = excluded.last_accessed
	`, n.ID, n.Type, string(props), string(embJSON), n.Weight,
		toMillis(n.CreatedAt), toMillis(n.LastAccessed))
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", n.ID, err)
	}
	return nil
}

func touchNode(x execer, id string, at time.Time) error {
	if _, err := x.Exec(`UPDATE graph_nodes SET last_accessed = ? WHERE id = ?`, toMillis(at), id); err != nil {
		return fmt.Errorf("touch node %s: %w", id, err)
	}
	return nil
}

func upsertEdge(x execer, e *graph.Edge) error {
	_, err := x.Exec(`
		INSERT INTO graph_edges (id, from_node, to_node, edge_type, strength, traversal_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			edge_type = excluded.edge_type,
			strength = excluded.strength,
			traversal_count = excluded.traversal_count,
			created_at = excluded.created_at
	`, e.ID, e.From, e.To, e.Type, e.Strength, e.TraversalCount, toMillis(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert edge %s: %w", e.ID, err)
	}
	return nil
}

func deleteEdge(x execer, id string) error {
	if _, err := x.Exec(`DELETE FROM graph_edges WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete edge %s: %w", id, err)
	}
	return nil
}

// UpsertNode writes a node, replacing any row with the same id.
func (db *DB) UpsertNode(n *graph.Node) error { return upsertNode(db, n) }

// UpsertEdge writes an edge, replacing any row with the same id.
func (db *DB) UpsertEdge(e *graph.Edge) error { return upsertEdge(db, e) }

// DeleteEdge removes an edge row. Deleting a missing edge is not an error.
func (db *DB) DeleteEdge(id string) error { return deleteEdge(db, id) }

// ListNodes returns every node in insertion order.
func (db *DB) ListNodes() ([]graph.Node, error) {
	rows, err := db.Query(`
		SELECT id, type, properties, embedding, weight, created_at, last_accessed
		FROM graph_nodes ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// GetNode returns a node by id, or nil if not found.
func (db *DB) GetNode(id string) (*graph.Node, error) {
	rows, err := db.Query(`
		SELECT id, type, properties, embedding, weight, created_at, last_accessed
		FROM graph_nodes WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	defer rows.Close()
	nodes, err := scanNodes(rows)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return &nodes[0], nil
}

// ListEdges returns every edge in insertion order.
func (db *DB) ListEdges() ([]graph.Edge, error) {
	rows, err := db.Query(`
		SELECT id, from_node, to_node, edge_type, strength, traversal_count, created_at
		FROM graph_edges ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []graph.Edge
	for rows.Next() {
		var e graph.Edge
		var created int64
		if err := rows.Scan(&e.ID, &e.From, &e.To, &e.Type, &e.Strength, &e.TraversalCount, &created); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.CreatedAt = fromMillis(created)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// CountRows returns the row count of each graph table.
func (db *DB) CountRows() (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"graph_nodes", "graph_edges", "knowledge_clusters", "inference_operations", "api_usage_metrics"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

func scanNodes(rows *sql.Rows) ([]graph.Node, error) {
	var nodes []graph.Node
	for rows.Next() {
		var n graph.Node
		var props, emb string
		var created, accessed int64
		if err := rows.Scan(&n.ID, &n.Type, &props, &emb, &n.Weight, &created, &accessed); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		if err := json.Unmarshal([]byte(props), &n.Properties); err != nil {
			return nil, fmt.Errorf("decode properties for %s: %w", n.ID, err)
		}
		if err := json.Unmarshal([]byte(emb), &n.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", n.ID, err)
		}
		if len(n.Embedding) == 0 {
			n.Embedding = nil
		}
		n.CreatedAt = fromMillis(created)
		n.LastAccessed = fromMillis(accessed)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
