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

// CreateEdge inserts a directed edge. The weight is clamped to
// [MinEdgeWeight, MaxEdgeWeight].
func (dm *DBManager) CreateEdge(ctx context.Context, e apptype.Edge) (apptype.Edge, error) {
	done := metrics.TimeOp("db_create_edge")
	success := false
	defer func() { done(success) }()

	if e.SourceID == "" || e.TargetID == "" {
		return apptype.Edge{}, fmt.Errorf("edge endpoints cannot be empty")
	}
	if strings.TrimSpace(e.RelationType) == "" {
		return apptype.Edge{}, fmt.Errorf("relation type cannot be empty")
	}
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return apptype.Edge{}, err
	}
	e.ID = uuid.NewString()
	e.Weight = apptype.ClampWeight(e.Weight)
	e.CreatedAt = now()
	e.LastTraversed = nil
	e.TraversalCount = 0

	if _, err := dm.db.ExecContext(ctx,
		`INSERT INTO edges (id, source_id, target_id, relation_type, weight, metadata, created_at, traversal_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		e.ID, e.SourceID, e.TargetID, e.RelationType, e.Weight, meta, formatTime(e.CreatedAt)); err != nil {
		return apptype.Edge{}, fmt.Errorf("failed to insert edge %s-[%s]->%s: %w", e.SourceID, e.RelationType, e.TargetID, err)
	}
	success = true
	return e, nil
}

// GetEdge returns the edge with id.
func (dm *DBManager) GetEdge(ctx context.Context, id string) (apptype.Edge, error) {
	stmt, err := dm.preparedStmt(ctx, "SELECT "+edgeColumns+" FROM edges WHERE id = ?")
	if err != nil {
		return apptype.Edge{}, err
	}
	e, err := scanEdge(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return apptype.Edge{}, fmt.Errorf("edge %s: %w", id, apptype.ErrNotFound)
	}
	if err != nil {
		return apptype.Edge{}, fmt.Errorf("failed to get edge %s: %w", id, err)
	}
	return e, nil
}

// FindEdge returns the oldest edge between a and b in either direction.
// An empty relationType matches any relation.
func (dm *DBManager) FindEdge(ctx context.Context, a, b, relationType string) (apptype.Edge, error) {
	q := "SELECT " + edgeColumns + " FROM edges WHERE ((source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?))"
	args := []any{a, b, b, a}
	if relationType != "" {
		q += " AND relation_type = ?"
		args = append(args, relationType)
	}
	q += " ORDER BY created_at, id LIMIT 1"
	stmt, err := dm.preparedStmt(ctx, q)
	if err != nil {
		return apptype.Edge{}, err
	}
	e, err := scanEdge(stmt.QueryRowContext(ctx, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return apptype.Edge{}, fmt.Errorf("edge between %s and %s: %w", a, b, apptype.ErrNotFound)
	}
	if err != nil {
		return apptype.Edge{}, fmt.Errorf("failed to find edge: %w", err)
	}
	return e, nil
}

// GetEdgesForNode returns every edge touching id, in either direction,
// oldest first.
func (dm *DBManager) GetEdgesForNode(ctx context.Context, id string) ([]apptype.Edge, error) {
	stmt, err := dm.preparedStmt(ctx,
		"SELECT "+edgeColumns+" FROM edges WHERE source_id = ? OR target_id = ? ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get edges for %s: %w", id, err)
	}
	return collectEdges(rows)
}

// GetAllEdges returns every edge between live nodes.
func (dm *DBManager) GetAllEdges(ctx context.Context) ([]apptype.Edge, error) {
	rows, err := dm.db.QueryContext(ctx, `SELECT `+prefixed("e", edgeColumns)+` FROM edges e
		JOIN nodes s ON s.id = e.source_id AND s.merged_into IS NULL
		JOIN nodes t ON t.id = e.target_id AND t.merged_into IS NULL
		ORDER BY e.created_at, e.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	return collectEdges(rows)
}

// CountEdges returns the number of edges between live nodes.
func (dm *DBManager) CountEdges(ctx context.Context) (int, error) {
	var c int64
	err := dm.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges e
		JOIN nodes s ON s.id = e.source_id AND s.merged_into IS NULL
		JOIN nodes t ON t.id = e.target_id AND t.merged_into IS NULL`).Scan(&c)
	if err != nil {
		return 0, fmt.Errorf("failed to count edges: %w", err)
	}
	return int(c), nil
}

// BoostEdge adds amount to the edge weight (clamped), stamps the traversal,
// and returns the new weight.
func (dm *DBManager) BoostEdge(ctx context.Context, id string, amount float64) (float64, error) {
	done := metrics.TimeOp("db_boost_edge")
	success := false
	defer func() { done(success) }()

	stmt, err := dm.preparedStmt(ctx, `UPDATE edges
		SET weight = MIN(MAX(weight + ?, 0.1), 10.0),
		    last_traversed = ?,
		    traversal_count = traversal_count + 1
		WHERE id = ? RETURNING weight`)
	if err != nil {
		return 0, err
	}
	var w float64
	err = stmt.QueryRowContext(ctx, amount, formatTime(now()), id).Scan(&w)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("edge %s: %w", id, apptype.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to boost edge %s: %w", id, err)
	}
	success = true
	return w, nil
}

// SetEdgeWeight overwrites the weight (clamped).
func (dm *DBManager) SetEdgeWeight(ctx context.Context, id string, weight float64) error {
	res, err := dm.db.ExecContext(ctx,
		"UPDATE edges SET weight = MIN(MAX(?, 0.1), 10.0) WHERE id = ?", weight, id)
	if err != nil {
		return fmt.Errorf("failed to set weight on edge %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("edge %s: %w", id, apptype.ErrNotFound)
	}
	return nil
}

// DecayEdges multiplies every edge weight by factor, clamped to the weight
// range, and returns the number of edges touched.
func (dm *DBManager) DecayEdges(ctx context.Context, factor float64) (int64, error) {
	done := metrics.TimeOp("db_decay_edges")
	success := false
	defer func() { done(success) }()

	if factor <= 0 {
		return 0, fmt.Errorf("decay factor must be positive, got %v", factor)
	}
	res, err := dm.db.ExecContext(ctx, "UPDATE edges SET weight = MIN(MAX(weight * ?, 0.1), 10.0)", factor)
	if err != nil {
		return 0, fmt.Errorf("failed to decay edges: %w", err)
	}
	n, _ := res.RowsAffected()
	success = true
	return n, nil
}

// prefixed qualifies a comma-separated column list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
