package graph

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
)

const (
	confirmBoost   = 0.5
	rejectedWeight = apptype.MinEdgeWeight
)

// Merge folds req.MergeIDs into req.KeepID. Each absorbed node's edges are
// re-pointed to the survivor, the node is tombstoned and dropped from the
// similarity index. Unknown or already-merged ids are skipped; an unknown
// or tombstoned survivor fails with apptype.ErrNotFound.
func (e *Engine) Merge(ctx context.Context, req apptype.MergeRequest) (apptype.Node, error) {
	if err := e.check(req); err != nil {
		return apptype.Node{}, err
	}
	keep, ok, err := e.liveNode(ctx, req.KeepID)
	if err != nil {
		return apptype.Node{}, err
	}
	if !ok {
		return apptype.Node{}, fmt.Errorf("node %s: %w", req.KeepID, apptype.ErrNotFound)
	}

	var (
		merged []string
		moved  int64
	)
	for _, id := range req.MergeIDs {
		if id == keep.ID {
			continue
		}
		n, ok, err := e.liveNode(ctx, id)
		if err != nil {
			return keep, err
		}
		if !ok {
			continue
		}
		m, err := e.store.AbsorbNode(ctx, keep.ID, n.ID)
		if errors.Is(err, apptype.ErrNotFound) {
			continue
		}
		if err != nil {
			return keep, err
		}
		moved += m
		merged = append(merged, n.ID)
		if err := e.index.Delete(ctx, n.ID); err != nil {
			e.log.Warn("failed to drop merged node from index", zap.String("node_id", n.ID), zap.Error(err))
		}
	}

	if err := e.recordAdaptation(ctx, apptype.EventEntitiesMerged,
		fmt.Sprintf("Merged %d entities into '%s'", len(merged), keep.Name),
		map[string]any{"kept": keep.ID, "merged": merged, "edges_moved": moved}); err != nil {
		return keep, err
	}
	e.bus.Publish(events.KindGraphUpdate, map[string]any{"action": "entities_merged", "kept": keep.ID, "merged": merged})

	keep, err = e.store.GetNode(ctx, keep.ID)
	if err != nil {
		return apptype.Node{}, err
	}
	return keep, nil
}

// ConfirmEdge reinforces an edge the user confirmed.
func (e *Engine) ConfirmEdge(ctx context.Context, edgeID string) (apptype.Edge, error) {
	if _, err := e.store.BoostEdge(ctx, edgeID, confirmBoost); err != nil {
		return apptype.Edge{}, err
	}
	return e.edgeFeedback(ctx, edgeID, apptype.EventEdgeConfirmed, "User confirmed edge")
}

// RejectEdge drops an edge the user rejected to the minimum weight. The
// edge itself is kept.
func (e *Engine) RejectEdge(ctx context.Context, edgeID string) (apptype.Edge, error) {
	if err := e.store.SetEdgeWeight(ctx, edgeID, rejectedWeight); err != nil {
		return apptype.Edge{}, err
	}
	return e.edgeFeedback(ctx, edgeID, apptype.EventEdgeRejected, "User rejected edge")
}

func (e *Engine) edgeFeedback(ctx context.Context, edgeID, kind, description string) (apptype.Edge, error) {
	edge, err := e.store.GetEdge(ctx, edgeID)
	if err != nil {
		return apptype.Edge{}, err
	}
	if err := e.recordAdaptation(ctx, kind, description, map[string]any{"edge_id": edgeID, "weight": edge.Weight}); err != nil {
		return edge, err
	}
	e.bus.Publish(events.KindGraphUpdate, map[string]any{"action": kind, "edge": edge})
	return edge, nil
}
