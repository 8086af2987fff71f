package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/buildinfo"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/pkg/knowledge"
)

const serverName = "knowledge-graph-libsql-go"

// MCPServer handles MCP protocol communication
type MCPServer struct {
	server *mcp.Server
	svc    *knowledge.Service
	feed   *EventFeed
	log    *zap.Logger
}

// NewMCPServer creates a new MCP server
func NewMCPServer(svc *knowledge.Service, log *zap.Logger) *MCPServer {
	if log == nil {
		log = zap.NewNop()
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: buildinfo.Version,
	}, nil)

	s := &MCPServer{
		server: server,
		svc:    svc,
		feed:   NewEventFeed(svc.Events(), log),
		log:    log.Named("server"),
	}
	s.setupToolHandlers()
	return s
}

func schemaFor[T any]() *jsonschema.Schema {
	s, err := jsonschema.For[T]()
	if err != nil {
		var zero T
		panic(fmt.Sprintf("failed to create schema for %T: %v", zero, err))
	}
	return s
}

// setupToolHandlers registers all MCP tools
func (s *MCPServer) setupToolHandlers() {
	mcp.AddTool(s.server, &mcp.Tool{
		Annotations: &mcp.ToolAnnotations{Title: "Add Note"},
		Name:        "add_note",
		Title:       "Add Note",
		Description: "Ingest a note: extract entities, resolve them against the graph, and auto-link related nodes.",
		InputSchema: schemaFor[apptype.AddNoteArgs](),
	}, s.handleAddNote)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "import_notes",
		Title:       "Import Notes",
		Description: "Ingest many notes concurrently. Failed notes are reported without aborting the batch.",
		InputSchema: schemaFor[apptype.ImportNotesArgs](),
	}, s.handleImportNotes)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Title:       "Query Graph",
		Description: "Answer a question by embedding search, edge expansion, entity matching and optional language-model synthesis.",
		InputSchema: schemaFor[apptype.QueryArgs](),
	}, s.handleQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "read_graph",
		Title:       "Read Graph",
		Description: "Return every live node and edge.",
		InputSchema: schemaFor[apptype.ReadGraphArgs](),
	}, s.handleReadGraph)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "graph_state",
		Title:       "Graph State",
		Description: "Node and edge counts, schema types and query metrics.",
		InputSchema: schemaFor[apptype.GraphStateArgs](),
	}, s.handleGraphState)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "recent_adaptations",
		Title:       "Recent Adaptations",
		Description: "Newest entries of the adaptation audit log.",
		InputSchema: schemaFor[apptype.RecentAdaptationsArgs](),
	}, s.handleRecentAdaptations)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "schema_types",
		Title:       "Schema Types",
		Description: "Registered node types with live counts.",
		InputSchema: schemaFor[apptype.SchemaTypesArgs](),
	}, s.handleSchemaTypes)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "define_type",
		Title:       "Define Type",
		Description: "Register a schema type explicitly.",
		InputSchema: schemaFor[apptype.DefineTypeArgs](),
	}, s.handleDefineType)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "suggest_type",
		Title:       "Suggest Type",
		Description: "Propose a type name for example entities, optionally registering it.",
		InputSchema: schemaFor[apptype.SuggestTypeArgs](),
	}, s.handleSuggestType)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations: &mcp.ToolAnnotations{Title: "Merge Entities"},
		Name:        "merge_entities",
		Title:       "Merge Entities",
		Description: "Fold duplicate nodes into one, moving their edges.",
		InputSchema: schemaFor[apptype.MergeEntitiesArgs](),
	}, s.handleMergeEntities)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "confirm_edge",
		Title:       "Confirm Edge",
		Description: "Strengthen an edge the user agrees with.",
		InputSchema: schemaFor[apptype.EdgeFeedbackArgs](),
	}, s.handleConfirmEdge)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reject_edge",
		Title:       "Reject Edge",
		Description: "Drop an edge to the minimum weight.",
		InputSchema: schemaFor[apptype.EdgeFeedbackArgs](),
	}, s.handleRejectEdge)

	mcp.AddTool(s.server, &mcp.Tool{
		Annotations: &mcp.ToolAnnotations{Title: "Clear Graph"},
		Name:        "clear_graph",
		Title:       "Clear Graph",
		Description: "Delete all nodes, edges and adaptation history. Requires confirm=true.",
		InputSchema: schemaFor[apptype.ClearGraphArgs](),
	}, s.handleClearGraph)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:         "health_check",
		Title:        "Health Check",
		Description:  "Returns server and configuration information.",
		InputSchema:  schemaFor[apptype.HealthArgs](),
		OutputSchema: schemaFor[apptype.HealthResult](),
	}, s.handleHealth)
}

func (s *MCPServer) reportPoolStats(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				inUse, idle := s.svc.PoolStats()
				metrics.Default().ObservePoolStats(inUse, idle)
			}
		}
	}()
}

// Run starts the MCP server with stdio transport
func (s *MCPServer) Run(ctx context.Context) error {
	s.reportPoolStats(ctx)
	return s.server.Run(ctx, mcp.NewStdioTransport())
}

// Handler returns the HTTP routes served in SSE mode: the MCP endpoint and
// the live event feed at /events.
func (s *MCPServer) Handler(endpoint string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(endpoint, mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.server }))
	mux.Handle("/events", s.feed)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// RunSSE starts the MCP server over SSE at the given address and endpoint
func (s *MCPServer) RunSSE(ctx context.Context, addr string, endpoint string) error {
	s.reportPoolStats(ctx)
	srv := &http.Server{Addr: addr, Handler: s.Handler(endpoint), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		s.feed.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("SSE MCP server listening", zap.String("addr", addr), zap.String("endpoint", endpoint))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
