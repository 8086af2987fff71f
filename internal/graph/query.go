package graph

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/llm"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

const (
	defaultMaxResults = 10
	expansionFanout   = 5
	traversalBoost    = 0.1
	discoveryFactor   = 0.7
	exactMatchScore   = 0.95
)

// tracer emits traversal events for one query. A disabled tracer is a
// no-op so streaming and non-streaming runs share one code path.
type tracer struct {
	seq     *events.Sequencer
	enabled bool
}

func (t *tracer) emit(ev events.Event) {
	if !t.enabled {
		return
	}
	ev.Type = events.KindQueryTraversal
	t.seq.Emit(ev)
	// let consumers keep pace between events
	runtime.Gosched()
}

// Query runs the five traversal phases without emitting events.
func (e *Engine) Query(ctx context.Context, req apptype.QueryRequest) (apptype.QueryResult, error) {
	return e.runQuery(ctx, req, &tracer{})
}

// QueryStream runs the query and emits every traversal event, in phase
// order, to sink and to the engine's live observers.
func (e *Engine) QueryStream(ctx context.Context, req apptype.QueryRequest, sink events.Sink) (apptype.QueryResult, error) {
	seq := events.NewSequencer(uuid.NewString(), events.Tee(sink, e.bus))
	return e.runQuery(ctx, req, &tracer{seq: seq, enabled: true})
}

// StreamQuery starts the query in the background and returns its event
// stream together with a wait function for the final result. The stream is
// closed after the terminal event.
func (e *Engine) StreamQuery(ctx context.Context, req apptype.QueryRequest) (*events.Stream, func() (apptype.QueryResult, error)) {
	stream := events.NewStream()
	type outcome struct {
		res apptype.QueryResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer stream.Close()
		res, err := e.QueryStream(ctx, req, stream)
		ch <- outcome{res, err}
	}()
	return stream, sync.OnceValues(func() (apptype.QueryResult, error) {
		o := <-ch
		return o.res, o.err
	})
}

type queryState struct {
	nodes    []apptype.Node
	edges    []apptype.Edge
	path     []string
	expanded map[string]struct{}
	edgeSeen map[string]struct{}
}

func (s *queryState) add(n apptype.Node) {
	s.nodes = append(s.nodes, n)
	s.path = append(s.path, n.ID)
	s.expanded[n.ID] = struct{}{}
}

func (s *queryState) has(id string) bool {
	_, ok := s.expanded[id]
	return ok
}

func (e *Engine) runQuery(ctx context.Context, req apptype.QueryRequest, tr *tracer) (apptype.QueryResult, error) {
	if err := e.check(req); err != nil {
		return apptype.QueryResult{}, err
	}
	if req.MaxResults == 0 {
		req.MaxResults = defaultMaxResults
	}
	start := time.Now()
	st := &queryState{expanded: make(map[string]struct{}), edgeSeen: make(map[string]struct{})}
	d := e.opts.Delays

	if err := e.phaseEmbeddingSearch(ctx, req, st, tr, d); err != nil {
		return apptype.QueryResult{}, err
	}
	if err := e.phaseEdgeExpansion(ctx, st, tr, d); err != nil {
		return apptype.QueryResult{}, err
	}
	if err := e.phaseEntityMatch(ctx, req, st, tr, d); err != nil {
		return apptype.QueryResult{}, err
	}

	var (
		response string
		used     bool
	)
	if req.UseGeneration && len(st.nodes) > 0 && e.generationAvailable(ctx) {
		tr.emit(events.Event{Phase: events.PhaseLLMThinking, DelayMs: d.LLMThinking})
		response, used = e.generate(ctx, req.Query, st)
	}

	if err := ctx.Err(); err != nil {
		return apptype.QueryResult{}, err
	}
	elapsed := time.Since(start)
	latency := float64(elapsed.Microseconds()) / 1000
	if err := e.store.RecordQuery(ctx, latency, used); err != nil {
		return apptype.QueryResult{}, err
	}
	metrics.Default().ObserveQuery(used, elapsed.Seconds())
	if _, err := e.ontology.CheckQuery(ctx, st.nodes); err != nil {
		return apptype.QueryResult{}, err
	}
	tr.emit(events.Event{
		Phase:   events.PhaseComplete,
		DelayMs: d.Complete,
		Data:    map[string]any{"latency_ms": latency, "node_count": len(st.nodes), "used_generation": used},
	})

	return apptype.QueryResult{
		Nodes:          st.nodes,
		Edges:          st.edges,
		TraversalPath:  st.path,
		Response:       response,
		LatencyMs:      latency,
		UsedGeneration: used,
	}, nil
}

func (e *Engine) phaseEmbeddingSearch(ctx context.Context, req apptype.QueryRequest, st *queryState, tr *tracer, d events.Delays) error {
	hits, err := e.index.Search(ctx, req.Query, req.MaxResults)
	if err != nil {
		return err
	}
	for _, h := range hits {
		if st.has(h.ID) {
			continue
		}
		n, ok, err := e.liveNode(ctx, h.ID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		count, err := e.store.TouchNode(ctx, n.ID)
		if err != nil {
			return err
		}
		n.AccessCount = count
		st.add(n)
		tr.emit(events.Event{Phase: events.PhaseEmbeddingSearch, NodeID: n.ID, Score: h.Score, DelayMs: d.EmbeddingSearch})
	}
	return ctx.Err()
}

func (e *Engine) phaseEdgeExpansion(ctx context.Context, st *queryState, tr *tracer, d events.Delays) error {
	seeds := st.nodes
	if len(seeds) > expansionFanout {
		seeds = seeds[:expansionFanout]
	}
	seeds = append([]apptype.Node(nil), seeds...)
	for _, n := range seeds {
		edges, err := e.store.GetEdgesForNode(ctx, n.ID)
		if err != nil {
			return err
		}
		for _, edge := range edges {
			// The result carries the edge as fetched; only the store sees the boost.
			if _, err := e.store.BoostEdge(ctx, edge.ID, traversalBoost); err != nil {
				return err
			}
			if _, seen := st.edgeSeen[edge.ID]; !seen {
				st.edgeSeen[edge.ID] = struct{}{}
				st.edges = append(st.edges, edge)
			}
			tr.emit(events.Event{Phase: events.PhaseEdgeExpansion, NodeID: n.ID, EdgeID: edge.ID, DelayMs: d.EdgeExpansion})

			other := edge.Other(n.ID)
			if st.has(other) {
				continue
			}
			on, ok, err := e.liveNode(ctx, other)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			st.add(on)
			tr.emit(events.Event{
				Phase:      events.PhaseEdgeExpansion,
				NodeID:     on.ID,
				EdgeID:     edge.ID,
				Score:      edge.Weight * discoveryFactor,
				Discovered: true,
				DelayMs:    d.Discovery,
			})
		}
	}
	return ctx.Err()
}

func (e *Engine) phaseEntityMatch(ctx context.Context, req apptype.QueryRequest, st *queryState, tr *tracer, d events.Delays) error {
	spans, err := e.resolver.ExtractWithContext(ctx, req.Query, req.Query)
	if err != nil {
		e.log.Warn("query entity extraction failed", zap.String("query", req.Query), zap.Error(err))
		return ctx.Err()
	}
	for _, s := range spans {
		n, err := e.store.FindNodeByName(ctx, s.Text, "")
		if errors.Is(err, apptype.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if st.has(n.ID) {
			continue
		}
		st.add(n)
		tr.emit(events.Event{Phase: events.PhaseEntityMatch, NodeID: n.ID, Score: exactMatchScore, DelayMs: d.EntityMatch})
	}
	return ctx.Err()
}

// generate answers query over the first result nodes and edges. Failures
// degrade to no answer.
func (e *Engine) generate(ctx context.Context, query string, st *queryState) (string, bool) {
	names := make(map[string]string, len(st.nodes))
	ctxNodes := make([]apptype.Node, 0, len(st.nodes))
	for _, n := range st.nodes {
		names[n.ID] = n.Name
		if n.Content == "" {
			n.Content = n.Name
		}
		ctxNodes = append(ctxNodes, n)
	}
	var ctxEdges []llm.EdgeContext
	for i, edge := range st.edges {
		if i == 5 {
			break
		}
		src, okS := e.nodeName(ctx, names, edge.SourceID)
		tgt, okT := e.nodeName(ctx, names, edge.TargetID)
		if !okS || !okT {
			continue
		}
		ctxEdges = append(ctxEdges, llm.EdgeContext{SourceName: src, RelationType: edge.RelationType, TargetName: tgt})
	}
	resp, err := llm.Answer(ctx, e.gen, query, ctxNodes, ctxEdges)
	if err != nil {
		e.log.Warn("generation failed, returning graph results only", zap.Error(err))
		return "", false
	}
	return resp, true
}

func (e *Engine) nodeName(ctx context.Context, cache map[string]string, id string) (string, bool) {
	if name, ok := cache[id]; ok {
		return name, true
	}
	n, err := e.store.GetNode(ctx, id)
	if err != nil {
		return "", false
	}
	cache[id] = n.Name
	return n.Name, true
}

// liveNode fetches id, reporting ok=false for missing nodes and merge
// tombstones.
func (e *Engine) liveNode(ctx context.Context, id string) (apptype.Node, bool, error) {
	n, err := e.store.GetNode(ctx, id)
	if errors.Is(err, apptype.ErrNotFound) {
		return apptype.Node{}, false, nil
	}
	if err != nil {
		return apptype.Node{}, false, err
	}
	return n, !n.IsTombstone(), nil
}
