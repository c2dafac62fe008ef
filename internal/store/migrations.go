package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "graph_nodes and graph_edges: node and edge tables",
		SQL: `
CREATE TABLE graph_nodes (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL,
    properties     TEXT NOT NULL DEFAULT '{}',
    embedding      TEXT NOT NULL DEFAULT '[]',
    weight         REAL NOT NULL CHECK (weight >= 0.1 AND weight <= 1.0),
    created_at     INTEGER NOT NULL,
    last_accessed  INTEGER NOT NULL
);

CREATE INDEX idx_graph_nodes_type ON graph_nodes(type);

CREATE TABLE graph_edges (
    id              TEXT PRIMARY KEY,
    from_node       TEXT NOT NULL,
    to_node         TEXT NOT NULL,
    edge_type       TEXT NOT NULL,
    strength        REAL NOT NULL CHECK (strength >= 0.1 AND strength <= 1.0),
    traversal_count INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL,

    FOREIGN KEY (from_node) REFERENCES graph_nodes(id),
    FOREIGN KEY (to_node) REFERENCES graph_nodes(id)
);

CREATE INDEX idx_graph_edges_from ON graph_edges(from_node);
CREATE INDEX idx_graph_edges_to   ON graph_edges(to_node);
`,
	},
	{
		Version:     2,
		Description: "knowledge_clusters: derived connected components",
		SQL: `
CREATE TABLE knowledge_clusters (
    id         INTEGER PRIMARY KEY,
    theme      TEXT NOT NULL,
    node_ids   TEXT NOT NULL,
    coherence  REAL NOT NULL,
    created_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "inference_operations: append-only inference audit log",
		SQL: `
CREATE TABLE inference_operations (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    operation_type TEXT NOT NULL,
    source_data    TEXT NOT NULL,
    result_data    TEXT NOT NULL,
    confidence     REAL NOT NULL,
    created_at     INTEGER NOT NULL
);

CREATE INDEX idx_inference_created ON inference_operations(created_at DESC);
`,
	},
	{
		Version:     4,
		Description: "api_usage_metrics: embedding provider call outcomes",
		SQL: `
CREATE TABLE api_usage_metrics (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    provider         TEXT NOT NULL,
    operation        TEXT NOT NULL,
    tokens_used      INTEGER NOT NULL DEFAULT 0,
    response_time_ms INTEGER NOT NULL DEFAULT 0,
    success          INTEGER NOT NULL,
    error_details    TEXT,
    created_at       INTEGER NOT NULL
);

CREATE INDEX idx_usage_provider ON api_usage_metrics(provider, created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
