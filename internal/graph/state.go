package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/llm"
)

// State summarizes the graph and the query metrics.
func (e *Engine) State(ctx context.Context) (apptype.GraphState, error) {
	nodes, err := e.store.CountNodes(ctx)
	if err != nil {
		return apptype.GraphState{}, err
	}
	edges, err := e.store.CountEdges(ctx)
	if err != nil {
		return apptype.GraphState{}, err
	}
	types, err := e.store.ListSchemaTypes(ctx)
	if err != nil {
		return apptype.GraphState{}, err
	}
	m, err := e.store.GetMetrics(ctx)
	if err != nil {
		return apptype.GraphState{}, err
	}
	return apptype.GraphState{
		NodeCount:    nodes,
		EdgeCount:    edges,
		SchemaTypes:  types,
		TotalQueries: m.TotalQueries,
		LLMCalls:     m.LLMCalls,
		AvgLatencyMs: m.AvgLatencyMs,
	}, nil
}

// FullGraph returns every live node and every edge between live nodes.
func (e *Engine) FullGraph(ctx context.Context) ([]apptype.Node, []apptype.Edge, error) {
	nodes, err := e.store.GetAllNodes(ctx)
	if err != nil {
		return nil, nil, err
	}
	edges, err := e.store.GetAllEdges(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

// Adaptations returns the newest adaptation events first.
func (e *Engine) Adaptations(ctx context.Context, limit int) ([]apptype.AdaptationEvent, error) {
	return e.store.RecentAdaptations(ctx, limit)
}

// Schema lists the registered schema types.
func (e *Engine) Schema(ctx context.Context) ([]apptype.SchemaType, error) {
	return e.store.ListSchemaTypes(ctx)
}

// Clear wipes the graph back to the seed schema and zeroed metrics.
func (e *Engine) Clear(ctx context.Context) error {
	if err := e.store.ClearAll(ctx); err != nil {
		return err
	}
	if err := e.index.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear similarity index: %w", err)
	}
	e.ontology.Counter().Reset()
	e.bus.Publish(events.KindGraphCleared, nil)
	return nil
}

// DefineType registers name as a schema type, optionally recording the
// type it specializes. created is false if it already existed.
func (e *Engine) DefineType(ctx context.Context, name, evolvedFrom string) (apptype.TypeName, bool, error) {
	t, err := apptype.ParseTypeName(name)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	created, err := e.store.RegisterSchemaType(ctx, t, evolvedFrom)
	if err != nil || !created {
		return t, false, err
	}
	details := map[string]any{"type": string(t)}
	desc := fmt.Sprintf("Schema type '%s' created", t)
	if evolvedFrom != "" {
		details["evolved_from"] = evolvedFrom
		desc = fmt.Sprintf("Schema type '%s' created from '%s'", t, evolvedFrom)
	}
	return t, true, e.recordAdaptation(ctx, apptype.EventTypeCreated, desc, details)
}

// SuggestType asks the generator to name a type for examples. With
// register set, the suggestion is also added to the schema registry.
func (e *Engine) SuggestType(ctx context.Context, examples []string, register bool) (llm.TypeSuggestion, error) {
	if len(examples) == 0 {
		return llm.TypeSuggestion{}, fmt.Errorf("%w: examples are required", ErrInvalidInput)
	}
	types, err := e.store.ListSchemaTypes(ctx)
	if err != nil {
		return llm.TypeSuggestion{}, err
	}
	existing := make([]string, 0, len(types))
	for _, st := range types {
		existing = append(existing, string(st.Name))
	}
	var gen llm.Generator
	if e.generationAvailable(ctx) {
		gen = e.gen
	}
	s := llm.SuggestSchemaType(ctx, gen, examples, existing)
	s.Name = strings.Join(strings.Fields(strings.ToLower(s.Name)), "_")
	if register {
		t, _, err := e.DefineType(ctx, s.Name, "")
		if err != nil {
			return s, err
		}
		s.Name = string(t)
	}
	return s, nil
}
