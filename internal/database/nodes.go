package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

// CreateNode inserts n with a fresh id and timestamps. If n's type is a
// registered schema type, that type's count is incremented in the same
// transaction.
func (dm *DBManager) CreateNode(ctx context.Context, n apptype.Node) (apptype.Node, error) {
	done := metrics.TimeOp("db_create_node")
	success := false
	defer func() { done(success) }()

	if strings.TrimSpace(n.Name) == "" {
		return apptype.Node{}, fmt.Errorf("node name cannot be empty")
	}
	if err := n.EntityType.Validate(); err != nil {
		return apptype.Node{}, err
	}
	meta, err := encodeMetadata(n.Metadata)
	if err != nil {
		return apptype.Node{}, err
	}
	n.ID = uuid.NewString()
	n.CreatedAt = now()
	n.UpdatedAt = n.CreatedAt
	n.AccessCount = 0
	n.MergedInto = ""
	ts := formatTime(n.CreatedAt)

	err = dm.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nodes (id, name, name_key, entity_type, content, metadata, created_at, updated_at, access_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			n.ID, n.Name, apptype.NormalizeName(n.Name), string(n.EntityType), nullString(n.Content), meta, ts, ts); err != nil {
			return fmt.Errorf("failed to insert node %q: %w", n.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE schema_types SET count = count + 1 WHERE name = ?", string(n.EntityType)); err != nil {
			return fmt.Errorf("failed to update schema type count: %w", err)
		}
		return nil
	})
	if err != nil {
		return apptype.Node{}, err
	}
	success = true
	return n, nil
}

// GetNode returns the node with id, including merge tombstones.
func (dm *DBManager) GetNode(ctx context.Context, id string) (apptype.Node, error) {
	stmt, err := dm.preparedStmt(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?")
	if err != nil {
		return apptype.Node{}, err
	}
	n, err := scanNode(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return apptype.Node{}, fmt.Errorf("node %s: %w", id, apptype.ErrNotFound)
	}
	if err != nil {
		return apptype.Node{}, fmt.Errorf("failed to get node %s: %w", id, err)
	}
	return n, nil
}

// GetAllNodes returns every live (non-tombstoned) node, oldest first.
func (dm *DBManager) GetAllNodes(ctx context.Context) ([]apptype.Node, error) {
	done := metrics.TimeOp("db_get_all_nodes")
	success := false
	defer func() { done(success) }()
	rows, err := dm.db.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE merged_into IS NULL ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return nil, err
	}
	success = true
	return nodes, nil
}

// FindNodeByName looks up a live node by case-insensitive name, optionally
// restricted to entityType. The oldest match wins.
func (dm *DBManager) FindNodeByName(ctx context.Context, name string, entityType apptype.TypeName) (apptype.Node, error) {
	q := "SELECT " + nodeColumns + " FROM nodes WHERE name_key = ? AND merged_into IS NULL"
	args := []any{apptype.NormalizeName(name)}
	if entityType != "" {
		q += " AND entity_type = ?"
		args = append(args, string(entityType))
	}
	q += " ORDER BY created_at, id LIMIT 1"
	return dm.findOne(ctx, q, name, args...)
}

// FindEntityByName is FindNodeByName over every type except notes.
func (dm *DBManager) FindEntityByName(ctx context.Context, name string) (apptype.Node, error) {
	return dm.findOne(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE name_key = ? AND merged_into IS NULL AND entity_type != ? ORDER BY created_at, id LIMIT 1",
		name, apptype.NormalizeName(name), string(apptype.TypeNote))
}

func (dm *DBManager) findOne(ctx context.Context, q, name string, args ...any) (apptype.Node, error) {
	stmt, err := dm.preparedStmt(ctx, q)
	if err != nil {
		return apptype.Node{}, err
	}
	n, err := scanNode(stmt.QueryRowContext(ctx, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return apptype.Node{}, fmt.Errorf("node named %q: %w", name, apptype.ErrNotFound)
	}
	if err != nil {
		return apptype.Node{}, fmt.Errorf("failed to find node %q: %w", name, err)
	}
	return n, nil
}

// TouchNode atomically increments the node's access count, stamps
// updated_at and returns the new count.
func (dm *DBManager) TouchNode(ctx context.Context, id string) (int, error) {
	stmt, err := dm.preparedStmt(ctx,
		"UPDATE nodes SET access_count = access_count + 1, updated_at = ? WHERE id = ? RETURNING access_count")
	if err != nil {
		return 0, err
	}
	var count int64
	err = stmt.QueryRowContext(ctx, formatTime(now()), id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("node %s: %w", id, apptype.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update access count for %s: %w", id, err)
	}
	return int(count), nil
}

// CountNodesByType counts live nodes per type.
func (dm *DBManager) CountNodesByType(ctx context.Context) (map[apptype.TypeName]int, error) {
	rows, err := dm.db.QueryContext(ctx,
		"SELECT entity_type, COUNT(*) FROM nodes WHERE merged_into IS NULL GROUP BY entity_type")
	if err != nil {
		return nil, fmt.Errorf("failed to count nodes by type: %w", err)
	}
	defer rows.Close()
	out := make(map[apptype.TypeName]int)
	for rows.Next() {
		var t string
		var c int64
		if err := rows.Scan(&t, &c); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		out[apptype.TypeName(t)] = int(c)
	}
	return out, rows.Err()
}

// CountNodes returns the number of live nodes.
func (dm *DBManager) CountNodes(ctx context.Context) (int, error) {
	var c int64
	if err := dm.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE merged_into IS NULL").Scan(&c); err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return int(c), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
