package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
)

// DBManager is the libSQL-backed graph store. Every counter and weight
// mutation is a single SQL statement so concurrent callers never lose
// updates.
type DBManager struct {
	config *Config
	db     *sql.DB

	stmtMu    sync.RWMutex
	stmtCache map[string]*sql.Stmt

	capMu sync.RWMutex
	caps  capFlags
}

// Config returns the effective configuration.
func (dm *DBManager) Config() Config { return *dm.config }

// PoolStats returns in-use and idle connection counts.
func (dm *DBManager) PoolStats() (inUse int, idle int) {
	s := dm.db.Stats()
	return s.InUse, s.Idle
}

// Close releases prepared statements and the connection pool.
func (dm *DBManager) Close() error {
	dm.stmtMu.Lock()
	for k, stmt := range dm.stmtCache {
		_ = stmt.Close()
		delete(dm.stmtCache, k)
	}
	dm.stmtMu.Unlock()
	return dm.db.Close()
}

// withTx runs fn inside a transaction, committing on nil error.
func (dm *DBManager) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const nodeColumns = `id, name, entity_type, content, metadata, created_at, updated_at, access_count, merged_into`

func scanNode(r rowScanner) (apptype.Node, error) {
	var (
		n                  apptype.Node
		entityType         string
		content, mergedTo  sql.NullString
		meta               string
		created, updated   string
		accessCount        int64
	)
	if err := r.Scan(&n.ID, &n.Name, &entityType, &content, &meta, &created, &updated, &accessCount, &mergedTo); err != nil {
		return apptype.Node{}, err
	}
	n.EntityType = apptype.TypeName(entityType)
	n.Content = content.String
	n.MergedInto = mergedTo.String
	n.Metadata = decodeMetadata(meta)
	n.CreatedAt = parseTime(created)
	n.UpdatedAt = parseTime(updated)
	n.AccessCount = int(accessCount)
	return n, nil
}

const edgeColumns = `id, source_id, target_id, relation_type, weight, metadata, created_at, last_traversed, traversal_count`

func scanEdge(r rowScanner) (apptype.Edge, error) {
	var (
		e         apptype.Edge
		meta      string
		created   string
		traversed sql.NullString
		count     int64
	)
	if err := r.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.RelationType, &e.Weight, &meta, &created, &traversed, &count); err != nil {
		return apptype.Edge{}, err
	}
	e.Metadata = decodeMetadata(meta)
	e.CreatedAt = parseTime(created)
	if traversed.Valid && traversed.String != "" {
		t := parseTime(traversed.String)
		e.LastTraversed = &t
	}
	e.TraversalCount = int(count)
	return e, nil
}

func collectNodes(rows *sql.Rows) ([]apptype.Node, error) {
	defer rows.Close()
	var out []apptype.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func collectEdges(rows *sql.Rows) ([]apptype.Edge, error) {
	defer rows.Close()
	var out []apptype.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) map[string]any {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func now() time.Time { return time.Now().UTC() }
