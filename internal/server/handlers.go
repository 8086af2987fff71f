package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

const defaultAdaptationLimit = 20

func textResult[T any](text string, out T) *mcp.CallToolResultFor[T] {
	return &mcp.CallToolResultFor[T]{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: out,
	}
}

func toNoteInput(a apptype.AddNoteArgs) apptype.NoteInput {
	return apptype.NoteInput{Title: a.Title, Content: a.Content, Tags: a.Tags}
}

// handleAddNote handles the add_note tool call
func (s *MCPServer) handleAddNote(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.AddNoteArgs],
) (*mcp.CallToolResultFor[apptype.IngestResult], error) {
	done := metrics.TimeTool("add_note")
	var success bool
	defer func() { done(success) }()

	res, err := s.svc.AddNote(ctx, toNoteInput(params.Arguments))
	if err != nil {
		return nil, fmt.Errorf("failed to add note: %w", err)
	}
	success = true
	return textResult(fmt.Sprintf("Added note '%s' with %d entities and %d edges",
		res.Note.Name, len(res.Entities), len(res.Edges)), res), nil
}

// handleImportNotes handles the import_notes tool call
func (s *MCPServer) handleImportNotes(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ImportNotesArgs],
) (*mcp.CallToolResultFor[apptype.ImportNotesResult], error) {
	done := metrics.TimeTool("import_notes")
	var success bool
	defer func() { done(success) }()

	notes := make([]apptype.NoteInput, len(params.Arguments.Notes))
	for i, n := range params.Arguments.Notes {
		notes[i] = toNoteInput(n)
	}
	report := s.svc.ImportNotes(ctx, notes)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := apptype.ImportNotesResult{
		Total:     report.Total,
		Succeeded: len(report.Succeeded),
		NoteIDs:   make([]string, 0, len(report.Succeeded)),
		Failed:    make([]apptype.ImportFailure, 0, len(report.Failed)),
	}
	for _, r := range report.Succeeded {
		out.NoteIDs = append(out.NoteIDs, r.Note.ID)
	}
	for _, f := range report.Failed {
		out.Failed = append(out.Failed, apptype.ImportFailure{Index: f.Index, Title: f.Title, Error: f.Error})
	}
	success = len(out.Failed) == 0
	return textResult(fmt.Sprintf("Imported %d of %d notes (%d failed)",
		out.Succeeded, out.Total, len(out.Failed)), out), nil
}

// handleQuery handles the query tool call
func (s *MCPServer) handleQuery(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.QueryArgs],
) (*mcp.CallToolResultFor[apptype.QueryToolResult], error) {
	done := metrics.TimeTool("query")
	var success bool
	defer func() { done(success) }()

	args := params.Arguments
	req := apptype.QueryRequest{Query: args.Query, MaxResults: args.MaxResults, UseGeneration: args.UseGeneration}

	var trace events.Collector
	res, err := s.svc.QueryStream(ctx, req, &trace)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	out := apptype.QueryToolResult{QueryResult: res}
	if args.IncludeTrace {
		for _, ev := range trace.Events() {
			out.Trace = append(out.Trace, apptype.TraceStep{
				Seq:        ev.Seq,
				Phase:      string(ev.Phase),
				NodeID:     ev.NodeID,
				EdgeID:     ev.EdgeID,
				Score:      ev.Score,
				Discovered: ev.Discovered,
				DelayMs:    ev.DelayMs,
			})
		}
	}
	success = true

	text := res.Response
	if text == "" {
		text = fmt.Sprintf("Found %d nodes and %d edges", len(res.Nodes), len(res.Edges))
	}
	return textResult(text, out), nil
}

// handleReadGraph handles the read_graph tool call
func (s *MCPServer) handleReadGraph(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ReadGraphArgs],
) (*mcp.CallToolResultFor[apptype.GraphResult], error) {
	done := metrics.TimeTool("read_graph")
	var success bool
	defer func() { done(success) }()

	nodes, edges, err := s.svc.ReadGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	success = true
	return textResult(fmt.Sprintf("%d nodes, %d edges", len(nodes), len(edges)),
		apptype.GraphResult{Nodes: nodes, Edges: edges}), nil
}

func (s *MCPServer) handleGraphState(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.GraphStateArgs],
) (*mcp.CallToolResultFor[apptype.GraphState], error) {
	done := metrics.TimeTool("graph_state")
	var success bool
	defer func() { done(success) }()

	st, err := s.svc.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	success = true
	return textResult(fmt.Sprintf("%d nodes, %d edges, %d schema types, %d queries",
		st.NodeCount, st.EdgeCount, len(st.SchemaTypes), st.TotalQueries), st), nil
}

func (s *MCPServer) handleRecentAdaptations(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.RecentAdaptationsArgs],
) (*mcp.CallToolResultFor[apptype.AdaptationsResult], error) {
	done := metrics.TimeTool("recent_adaptations")
	var success bool
	defer func() { done(success) }()

	limit := params.Arguments.Limit
	if limit <= 0 {
		limit = defaultAdaptationLimit
	}
	evs, err := s.svc.Adaptations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list adaptations: %w", err)
	}
	success = true
	return textResult(fmt.Sprintf("%d adaptation events", len(evs)), apptype.AdaptationsResult{Events: evs}), nil
}

func (s *MCPServer) handleSchemaTypes(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SchemaTypesArgs],
) (*mcp.CallToolResultFor[apptype.SchemaResult], error) {
	done := metrics.TimeTool("schema_types")
	var success bool
	defer func() { done(success) }()

	types, err := s.svc.Engine().Schema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list schema types: %w", err)
	}
	success = true
	return textResult(fmt.Sprintf("%d schema types", len(types)), apptype.SchemaResult{Types: types}), nil
}

func (s *MCPServer) handleDefineType(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.DefineTypeArgs],
) (*mcp.CallToolResultFor[apptype.DefineTypeResult], error) {
	done := metrics.TimeTool("define_type")
	var success bool
	defer func() { done(success) }()

	name, created, err := s.svc.Engine().DefineType(ctx, params.Arguments.Name, params.Arguments.EvolvedFrom)
	if err != nil {
		return nil, fmt.Errorf("failed to define type: %w", err)
	}
	success = true
	msg := fmt.Sprintf("Schema type '%s' created", name)
	if !created {
		msg = fmt.Sprintf("Schema type '%s' already exists", name)
	}
	return textResult(msg, apptype.DefineTypeResult{Name: name.String(), Created: created}), nil
}

func (s *MCPServer) handleSuggestType(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.SuggestTypeArgs],
) (*mcp.CallToolResultFor[apptype.SuggestTypeResult], error) {
	done := metrics.TimeTool("suggest_type")
	var success bool
	defer func() { done(success) }()

	sug, err := s.svc.Engine().SuggestType(ctx, params.Arguments.Examples, params.Arguments.Register)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest type: %w", err)
	}
	success = true
	return textResult(fmt.Sprintf("Suggested type '%s': %s", sug.Name, sug.Description),
		apptype.SuggestTypeResult{Name: sug.Name, Description: sug.Description, Registered: params.Arguments.Register}), nil
}

// handleMergeEntities handles the merge_entities tool call
func (s *MCPServer) handleMergeEntities(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.MergeEntitiesArgs],
) (*mcp.CallToolResultFor[apptype.NodeResult], error) {
	done := metrics.TimeTool("merge_entities")
	var success bool
	defer func() { done(success) }()

	node, err := s.svc.Merge(ctx, params.Arguments.KeepID, params.Arguments.MergeIDs)
	if err != nil {
		if errors.Is(err, apptype.ErrNotFound) {
			return nil, fmt.Errorf("merge target %q not found", params.Arguments.KeepID)
		}
		return nil, fmt.Errorf("merge failed: %w", err)
	}
	success = true
	return textResult(fmt.Sprintf("Merged into '%s'", node.Name), apptype.NodeResult{Node: node}), nil
}

func (s *MCPServer) handleConfirmEdge(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.EdgeFeedbackArgs],
) (*mcp.CallToolResultFor[apptype.EdgeResult], error) {
	done := metrics.TimeTool("confirm_edge")
	var success bool
	defer func() { done(success) }()

	edge, err := s.svc.Engine().ConfirmEdge(ctx, params.Arguments.EdgeID)
	if err != nil {
		return nil, fmt.Errorf("confirm failed: %w", err)
	}
	success = true
	return textResult(fmt.Sprintf("Edge %s confirmed (weight %.3f)", edge.ID, edge.Weight), apptype.EdgeResult{Edge: edge}), nil
}

func (s *MCPServer) handleRejectEdge(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.EdgeFeedbackArgs],
) (*mcp.CallToolResultFor[apptype.EdgeResult], error) {
	done := metrics.TimeTool("reject_edge")
	var success bool
	defer func() { done(success) }()

	edge, err := s.svc.Engine().RejectEdge(ctx, params.Arguments.EdgeID)
	if err != nil {
		return nil, fmt.Errorf("reject failed: %w", err)
	}
	success = true
	return textResult(fmt.Sprintf("Edge %s rejected (weight %.3f)", edge.ID, edge.Weight), apptype.EdgeResult{Edge: edge}), nil
}

func (s *MCPServer) handleClearGraph(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.ClearGraphArgs],
) (*mcp.CallToolResultFor[any], error) {
	done := metrics.TimeTool("clear_graph")
	var success bool
	defer func() { done(success) }()

	if !params.Arguments.Confirm {
		return nil, fmt.Errorf("clear_graph requires confirm=true")
	}
	if err := s.svc.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear graph: %w", err)
	}
	success = true
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: "Graph cleared"}},
	}, nil
}

// handleHealth handles the health_check tool call
func (s *MCPServer) handleHealth(
	ctx context.Context,
	session *mcp.ServerSession,
	params *mcp.CallToolParamsFor[apptype.HealthArgs],
) (*mcp.CallToolResultFor[apptype.HealthResult], error) {
	done := metrics.TimeTool("health_check")
	var success bool
	defer func() { done(success) }()

	st, err := s.svc.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	info := buildinfo.Get()
	desc := s.svc.Describe()
	out := apptype.HealthResult{
		Name:               serverName,
		Version:            info.Version,
		Revision:           info.Revision,
		BuildDate:          info.BuildDate,
		EmbeddingDims:      desc.EmbeddingDims,
		EmbeddingsProvider: desc.EmbeddingsProvider,
		VectorBackend:      desc.VectorBackend,
		Extractor:          desc.Extractor,
		LLMProvider:        desc.LLMProvider,
		LLMAvailable:       s.svc.LLMAvailable(ctx),
		NodeCount:          st.NodeCount,
		EdgeCount:          st.EdgeCount,
	}
	success = true
	return textResult("ok", out), nil
}
