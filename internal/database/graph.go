package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

// AbsorbNode re-points absorbedID's edges to keepID and tombstones the
// absorbed node. Edges joining the two nodes stay on the tombstone so no
// self-loops are created. It returns the number of edges moved.
func (dm *DBManager) AbsorbNode(ctx context.Context, keepID, absorbedID string) (int64, error) {
	done := metrics.TimeOp("db_absorb_node")
	success := false
	defer func() { done(success) }()

	if keepID == absorbedID {
		return 0, fmt.Errorf("cannot merge node %s into itself", keepID)
	}
	var moved int64
	err := dm.withTx(ctx, func(tx *sql.Tx) error {
		var entityType string
		var mergedInto sql.NullString
		err := tx.QueryRowContext(ctx, "SELECT entity_type, merged_into FROM nodes WHERE id = ?", absorbedID).
			Scan(&entityType, &mergedInto)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("node %s: %w", absorbedID, apptype.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load node %s: %w", absorbedID, err)
		}
		if mergedInto.Valid {
			return nil
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE edges SET source_id = ? WHERE source_id = ? AND target_id != ?", keepID, absorbedID, keepID)
		if err != nil {
			return fmt.Errorf("failed to move outgoing edges: %w", err)
		}
		out, _ := res.RowsAffected()
		res, err = tx.ExecContext(ctx,
			"UPDATE edges SET target_id = ? WHERE target_id = ? AND source_id != ?", keepID, absorbedID, keepID)
		if err != nil {
			return fmt.Errorf("failed to move incoming edges: %w", err)
		}
		in, _ := res.RowsAffected()
		moved = out + in

		if _, err := tx.ExecContext(ctx,
			"UPDATE nodes SET merged_into = ?, updated_at = ? WHERE id = ?", keepID, formatTime(now()), absorbedID); err != nil {
			return fmt.Errorf("failed to tombstone node %s: %w", absorbedID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE schema_types SET count = MAX(count - 1, 0) WHERE name = ?", entityType); err != nil {
			return fmt.Errorf("failed to update schema type count: %w", err)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM node_vectors WHERE node_id = ?", absorbedID)
		return err
	})
	if err != nil {
		return 0, err
	}
	success = true
	return moved, nil
}

// ClearAll wipes nodes, edges, vectors and the adaptation log, resets seed
// type counts and metrics, and drops non-seed schema types.
func (dm *DBManager) ClearAll(ctx context.Context) error {
	done := metrics.TimeOp("db_clear_all")
	success := false
	defer func() { done(success) }()

	err := dm.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM edges",
			"DELETE FROM nodes",
			"DELETE FROM node_vectors",
			"DELETE FROM adaptation_events",
			"UPDATE schema_types SET count = 0 WHERE is_seed = 1",
			"DELETE FROM schema_types WHERE is_seed = 0",
			"UPDATE query_metrics SET total_queries = 0, llm_calls = 0, total_latency_ms = 0 WHERE id = 1",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to clear graph (%s): %w", stmt, err)
			}
		}
		return seedSchemaTypes(ctx, tx)
	})
	if err != nil {
		return err
	}
	success = true
	return nil
}
