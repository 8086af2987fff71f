// Package knowledge is the library entry point: it assembles the libSQL
// store, similarity index, entity resolver, optional language model and
// graph engine from one configuration.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/config"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/database"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/embeddings"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/entities"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/graph"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/llm"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/vectorindex"
)

// Description names the backends a Service was assembled from.
type Description struct {
	EmbeddingDims      int
	EmbeddingsProvider string
	VectorBackend      string
	Extractor          string
	LLMProvider        string
}

// Service owns the engine and the resources behind it.
type Service struct {
	db     *database.DBManager
	engine *graph.Engine
	gen    llm.Generator
	desc   Description
	log    *zap.Logger
}

// NewService constructs a Service from a library Config.
func NewService(cfg *Config, log *zap.Logger) (*Service, error) {
	return Open(cfg.toInternal(), log)
}

// Open assembles a Service from process configuration.
func Open(cfg *config.Config, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts, err := cfg.GraphOptions()
	if err != nil {
		return nil, err
	}

	db, err := database.NewDBManager(cfg.DatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The store may have been created with a different width.
	embOpts := cfg.EmbeddingsOptions()
	embOpts.Dims = db.Config().EmbeddingDims

	provider, err := embeddings.New(embOpts)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create embeddings provider: %w", err)
	}

	var index graph.Index
	switch cfg.Embeddings.VectorBackend {
	case "memory":
		index = vectorindex.NewMemory(provider)
	default:
		index = database.NewVectorIndex(db, provider)
	}

	var extractor entities.Extractor = entities.Heuristic{}
	extractorName := "heuristic"
	if cfg.Extractor.URL != "" {
		x, err := entities.NewHTTPExtractor(cfg.Extractor.URL, cfg.Extractor.Timeout)
		if err != nil {
			db.Close()
			return nil, err
		}
		extractor, extractorName = x, "http"
	}

	gen, err := llm.New(cfg.LLMOptions(), log)
	if err != nil {
		db.Close()
		return nil, err
	}

	engine, err := graph.New(graph.Deps{
		Store:     db,
		Index:     index,
		Resolver:  entities.NewResolver(extractor, cfg.Extractor.Threshold),
		Generator: gen,
		Bus:       events.NewBroadcaster(log),
		Logger:    log,
	}, opts)
	if err != nil {
		db.Close()
		return nil, err
	}

	llmName := strings.ToLower(cfg.LLM.Provider)
	if gen == nil {
		llmName = "none"
	}
	desc := Description{
		EmbeddingDims:      embOpts.Dims,
		EmbeddingsProvider: provider.Name(),
		VectorBackend:      cfg.Embeddings.VectorBackend,
		Extractor:          extractorName,
		LLMProvider:        llmName,
	}
	log.Info("knowledge graph ready",
		zap.String("db", redactURL(cfg.Database.URL)),
		zap.Int("dims", desc.EmbeddingDims),
		zap.String("embeddings", desc.EmbeddingsProvider),
		zap.String("vectors", desc.VectorBackend),
		zap.String("extractor", desc.Extractor),
		zap.String("llm", desc.LLMProvider))

	return &Service{db: db, engine: engine, gen: gen, desc: desc, log: log}, nil
}

// redactURL strips query parameters, which may carry credentials.
func redactURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

// Close releases resources.
func (s *Service) Close() error { return s.db.Close() }

// Engine exposes the graph engine.
func (s *Service) Engine() *graph.Engine { return s.engine }

// Events is the live feed of engine activity.
func (s *Service) Events() *events.Broadcaster { return s.engine.Events() }

// Describe reports the assembled backends.
func (s *Service) Describe() Description { return s.desc }

// PoolStats returns the database pool's in-use and idle connections.
func (s *Service) PoolStats() (inUse, idle int) { return s.db.PoolStats() }

// LLMAvailable reports whether answer generation can be attempted now.
func (s *Service) LLMAvailable(ctx context.Context) bool {
	return s.gen != nil && s.gen.Available(ctx)
}

// AddNote ingests one note.
func (s *Service) AddNote(ctx context.Context, note apptype.NoteInput) (apptype.IngestResult, error) {
	return s.engine.AddNote(ctx, note)
}

// ImportNotes ingests a batch; individual failures do not abort the rest.
func (s *Service) ImportNotes(ctx context.Context, notes []apptype.NoteInput) graph.IngestReport {
	return s.engine.IngestBatch(ctx, notes)
}

// Query runs the traversal without a caller-side sink.
func (s *Service) Query(ctx context.Context, req apptype.QueryRequest) (apptype.QueryResult, error) {
	return s.engine.Query(ctx, req)
}

// QueryStream runs the traversal, delivering every event to sink.
func (s *Service) QueryStream(ctx context.Context, req apptype.QueryRequest, sink events.Sink) (apptype.QueryResult, error) {
	return s.engine.QueryStream(ctx, req, sink)
}

// ReadGraph returns every live node and edge.
func (s *Service) ReadGraph(ctx context.Context) ([]apptype.Node, []apptype.Edge, error) {
	return s.engine.FullGraph(ctx)
}

// State summarizes the graph.
func (s *Service) State(ctx context.Context) (apptype.GraphState, error) {
	return s.engine.State(ctx)
}

// Adaptations returns the newest audit events.
func (s *Service) Adaptations(ctx context.Context, limit int) ([]apptype.AdaptationEvent, error) {
	return s.engine.Adaptations(ctx, limit)
}

// Merge folds duplicate nodes into one.
func (s *Service) Merge(ctx context.Context, keepID string, mergeIDs []string) (apptype.Node, error) {
	return s.engine.Merge(ctx, apptype.MergeRequest{KeepID: keepID, MergeIDs: mergeIDs})
}

// Clear empties the graph back to the seed schema.
func (s *Service) Clear(ctx context.Context) error { return s.engine.Clear(ctx) }
