package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/entities"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
)

const (
	noteNameRunes   = 50
	coOccurBoost    = 0.2
	similarNoteScan = 3
)

// AddNote ingests one note: it creates the note node, resolves and links
// its entities, links similar notes, runs the ingestion promotion check and
// decays every edge. Steps are not rolled back if a later one fails.
func (e *Engine) AddNote(ctx context.Context, in apptype.NoteInput) (apptype.IngestResult, error) {
	if err := e.check(in); err != nil {
		return apptype.IngestResult{}, err
	}
	start := time.Now()

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	note, err := e.store.CreateNode(ctx, apptype.Node{
		Name:       noteName(in),
		EntityType: apptype.TypeNote,
		Content:    in.Content,
		Metadata:   map[string]any{"tags": tags},
	})
	if err != nil {
		return apptype.IngestResult{}, err
	}
	e.indexNode(ctx, note.ID, strings.TrimSpace(in.Title+"\n"+in.Content))

	res := apptype.IngestResult{Note: note}
	spans, err := e.resolver.ExtractClean(ctx, in.Content)
	if err != nil {
		return res, fmt.Errorf("note %s: %w", note.ID, err)
	}

	seen := make(map[string]struct{}, len(spans))
	for _, span := range spans {
		ent, ok, err := e.resolveEntity(ctx, span)
		if err != nil {
			return res, err
		}
		if !ok {
			continue
		}
		if _, dup := seen[ent.ID]; dup {
			continue
		}
		seen[ent.ID] = struct{}{}
		res.Entities = append(res.Entities, ent)

		edge, err := e.store.CreateEdge(ctx, apptype.Edge{
			SourceID:     note.ID,
			TargetID:     ent.ID,
			RelationType: apptype.RelMentions,
			Weight:       span.Score,
			Metadata:     map[string]any{"extraction_score": span.Score},
		})
		if err != nil {
			return res, err
		}
		res.Edges = append(res.Edges, edge)
	}

	linked, err := e.linkCoOccurring(ctx, res.Entities)
	if err != nil {
		return res, err
	}
	res.Edges = append(res.Edges, linked...)

	similar, err := e.linkSimilarNotes(ctx, note)
	if err != nil {
		return res, err
	}
	res.Edges = append(res.Edges, similar...)

	if _, err := e.ontology.CheckIngest(ctx); err != nil {
		return res, err
	}
	if _, err := e.store.DecayEdges(ctx, e.opts.DecayFactor); err != nil {
		return res, err
	}

	latency := float64(time.Since(start).Microseconds()) / 1000
	if err := e.recordAdaptation(ctx, apptype.EventNoteAdded,
		fmt.Sprintf("Added note '%s' with %d entities", note.Name, len(res.Entities)),
		map[string]any{"latency_ms": latency, "entity_count": len(res.Entities), "note_id": note.ID}); err != nil {
		return res, err
	}

	e.bus.Publish(events.KindGraphUpdate, map[string]any{
		"action":   "note_added",
		"note":     note,
		"entities": res.Entities,
		"edges":    res.Edges,
	})
	e.log.Debug("note ingested",
		zap.String("note_id", note.ID),
		zap.Int("entities", len(res.Entities)),
		zap.Int("edges", len(res.Edges)),
		zap.Float64("latency_ms", latency))
	return res, nil
}

func noteName(in apptype.NoteInput) string {
	if t := strings.TrimSpace(in.Title); t != "" {
		return t
	}
	r := []rune(strings.TrimSpace(in.Content))
	if len(r) > noteNameRunes {
		r = r[:noteNameRunes]
	}
	return string(r) + "..."
}

// indexNode adds text to the similarity index. Index failures leave the
// node unsearchable but do not fail ingestion.
func (e *Engine) indexNode(ctx context.Context, id, text string) {
	if err := e.index.Add(ctx, id, text); err != nil {
		e.log.Warn("failed to index node", zap.String("node_id", id), zap.Error(err))
	}
}

// resolveEntity returns the existing entity whose normalized name matches
// span, bumping its access count, or creates one. ok is false for spans
// with no usable text. New entities are indexed outside writeMu since the
// embedding call may go over the network.
func (e *Engine) resolveEntity(ctx context.Context, span entities.Span) (apptype.Node, bool, error) {
	name := strings.Join(strings.Fields(span.Text), " ")
	if name == "" {
		return apptype.Node{}, false, nil
	}

	node, created, err := e.findOrCreateEntity(ctx, name, span)
	if err != nil {
		return apptype.Node{}, false, err
	}
	if created {
		e.indexNode(ctx, node.ID, name)
		e.ontology.Counter().Add(node.EntityType, 1)
	}
	return node, true, nil
}

func (e *Engine) findOrCreateEntity(ctx context.Context, name string, span entities.Span) (apptype.Node, bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	existing, err := e.store.FindEntityByName(ctx, name)
	switch {
	case err == nil:
		count, err := e.store.TouchNode(ctx, existing.ID)
		if err != nil {
			return apptype.Node{}, false, err
		}
		existing.AccessCount = count
		return existing, false, nil
	case !errors.Is(err, apptype.ErrNotFound):
		return apptype.Node{}, false, err
	}

	node, err := e.store.CreateNode(ctx, apptype.Node{
		Name:       name,
		EntityType: entities.TypeForLabel(span.Label),
		Metadata:   map[string]any{"original_label": span.Label, "extraction_score": span.Score},
	})
	if err != nil {
		return apptype.Node{}, false, err
	}
	return node, true, nil
}

// linkCoOccurring boosts any existing edge between each pair of a note's
// entities, or links the pair with co_occurs when their names are similar.
func (e *Engine) linkCoOccurring(ctx context.Context, nodes []apptype.Node) ([]apptype.Edge, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var created []apptype.Edge
	for i, a := range nodes {
		for _, b := range nodes[i+1:] {
			existing, err := e.store.FindEdge(ctx, a.ID, b.ID, "")
			if err == nil {
				if _, err := e.store.BoostEdge(ctx, existing.ID, coOccurBoost); err != nil {
					return created, err
				}
				continue
			}
			if !errors.Is(err, apptype.ErrNotFound) {
				return created, err
			}
			sim, err := e.index.Similarity(ctx, a.ID, b.ID)
			if err != nil {
				e.log.Warn("similarity lookup failed", zap.String("a", a.ID), zap.String("b", b.ID), zap.Error(err))
				continue
			}
			if sim <= e.opts.SimilarityThreshold {
				continue
			}
			edge, err := e.store.CreateEdge(ctx, apptype.Edge{
				SourceID:     a.ID,
				TargetID:     b.ID,
				RelationType: apptype.RelCoOccurs,
				Weight:       sim,
				Metadata:     map[string]any{"similarity": sim},
			})
			if err != nil {
				return created, err
			}
			created = append(created, edge)
		}
	}
	return created, nil
}

// linkSimilarNotes links note to its nearest other notes above the
// similarity threshold.
func (e *Engine) linkSimilarNotes(ctx context.Context, note apptype.Node) ([]apptype.Edge, error) {
	hits, err := e.index.SimilarTo(ctx, note.ID, similarNoteScan)
	if err != nil {
		e.log.Warn("similar-note lookup failed", zap.String("note_id", note.ID), zap.Error(err))
		return nil, nil
	}
	var created []apptype.Edge
	for _, h := range hits {
		if h.Score <= e.opts.SimilarityThreshold {
			continue
		}
		other, err := e.store.GetNode(ctx, h.ID)
		if errors.Is(err, apptype.ErrNotFound) {
			continue
		}
		if err != nil {
			return created, err
		}
		if other.EntityType != apptype.TypeNote || other.IsTombstone() {
			continue
		}
		edge, err := e.store.CreateEdge(ctx, apptype.Edge{
			SourceID:     note.ID,
			TargetID:     other.ID,
			RelationType: apptype.RelSimilarTo,
			Weight:       h.Score,
			Metadata:     map[string]any{"similarity": h.Score},
		})
		if err != nil {
			return created, err
		}
		created = append(created, edge)
	}
	return created, nil
}
