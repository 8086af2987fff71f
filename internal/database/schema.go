package database

import "fmt"

// dynamicSchema returns schema DDL using the configured embedding dimension
func dynamicSchema(embeddingDims int) []string {
	if embeddingDims <= 0 {
		embeddingDims = 4
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS nodes (
        id TEXT PRIMARY KEY,
        name TEXT NOT NULL,
        name_key TEXT NOT NULL,
        entity_type TEXT NOT NULL,
        content TEXT,
        metadata TEXT NOT NULL DEFAULT '{}',
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        access_count INTEGER NOT NULL DEFAULT 0,
        merged_into TEXT
    )`,

		`CREATE TABLE IF NOT EXISTS edges (
        id TEXT PRIMARY KEY,
        source_id TEXT NOT NULL,
        target_id TEXT NOT NULL,
        relation_type TEXT NOT NULL,
        weight REAL NOT NULL DEFAULT 1.0 CHECK (weight >= 0.1 AND weight <= 10.0),
        metadata TEXT NOT NULL DEFAULT '{}',
        created_at TEXT NOT NULL,
        last_traversed TEXT,
        traversal_count INTEGER NOT NULL DEFAULT 0
    )`,

		`CREATE TABLE IF NOT EXISTS schema_types (
        name TEXT PRIMARY KEY,
        count INTEGER NOT NULL DEFAULT 0,
        is_seed INTEGER NOT NULL DEFAULT 0,
        evolved_from TEXT,
        created_at TEXT NOT NULL
    )`,

		`CREATE TABLE IF NOT EXISTS adaptation_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        event_type TEXT NOT NULL,
        description TEXT NOT NULL,
        timestamp TEXT NOT NULL,
        details TEXT NOT NULL DEFAULT '{}'
    )`,

		`CREATE TABLE IF NOT EXISTS query_metrics (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        total_queries INTEGER NOT NULL DEFAULT 0,
        llm_calls INTEGER NOT NULL DEFAULT 0,
        total_latency_ms REAL NOT NULL DEFAULT 0
    )`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS node_vectors (
        node_id TEXT PRIMARY KEY,
        embedding F32_BLOB(%d) NOT NULL
    )`, embeddingDims),

		`CREATE INDEX IF NOT EXISTS idx_nodes_name_key ON nodes(name_key)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(entity_type)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_pair ON edges(source_id, target_id, relation_type)`,

		// ANN index for similarity search
		`CREATE INDEX IF NOT EXISTS idx_node_vectors_embedding ON node_vectors(libsql_vector_idx(embedding))`,

		`INSERT OR IGNORE INTO query_metrics (id, total_queries, llm_calls, total_latency_ms) VALUES (1, 0, 0, 0)`,
	}
}
