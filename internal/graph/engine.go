// Package graph is the adaptive knowledge-graph engine: note ingestion with
// entity resolution and auto-linking, usage-driven ontology evolution, the
// five-phase traversal query, merges, and edge feedback.
package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/entities"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/llm"
)

// Store is the persistent graph the engine mutates.
type Store interface {
	CreateNode(ctx context.Context, n apptype.Node) (apptype.Node, error)
	GetNode(ctx context.Context, id string) (apptype.Node, error)
	GetAllNodes(ctx context.Context) ([]apptype.Node, error)
	FindNodeByName(ctx context.Context, name string, entityType apptype.TypeName) (apptype.Node, error)
	FindEntityByName(ctx context.Context, name string) (apptype.Node, error)
	TouchNode(ctx context.Context, id string) (int, error)
	CountNodes(ctx context.Context) (int, error)
	CountNodesByType(ctx context.Context) (map[apptype.TypeName]int, error)

	CreateEdge(ctx context.Context, e apptype.Edge) (apptype.Edge, error)
	GetEdge(ctx context.Context, id string) (apptype.Edge, error)
	FindEdge(ctx context.Context, a, b, relationType string) (apptype.Edge, error)
	GetEdgesForNode(ctx context.Context, id string) ([]apptype.Edge, error)
	GetAllEdges(ctx context.Context) ([]apptype.Edge, error)
	CountEdges(ctx context.Context) (int, error)
	BoostEdge(ctx context.Context, id string, amount float64) (float64, error)
	SetEdgeWeight(ctx context.Context, id string, weight float64) error
	DecayEdges(ctx context.Context, factor float64) (int64, error)

	RegisterSchemaType(ctx context.Context, name apptype.TypeName, evolvedFrom string) (bool, error)
	ListSchemaTypes(ctx context.Context) ([]apptype.SchemaType, error)
	HasSchemaType(ctx context.Context, name apptype.TypeName) (bool, error)
	LogAdaptation(ctx context.Context, eventType, description string, details map[string]any) (apptype.AdaptationEvent, error)
	RecentAdaptations(ctx context.Context, limit int) ([]apptype.AdaptationEvent, error)
	RecordQuery(ctx context.Context, latencyMs float64, usedGeneration bool) error
	GetMetrics(ctx context.Context) (apptype.Metrics, error)

	AbsorbNode(ctx context.Context, keepID, absorbedID string) (int64, error)
	ClearAll(ctx context.Context) error
}

// Index is the similarity index over node text.
type Index interface {
	Add(ctx context.Context, id, text string) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, text string, k int) ([]apptype.ScoredID, error)
	SimilarTo(ctx context.Context, id string, k int) ([]apptype.ScoredID, error)
	Similarity(ctx context.Context, a, b string) (float64, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// Options are the engine's tunables.
type Options struct {
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	PromotionThreshold  int           `yaml:"promotion_threshold"`
	QueryPromotionMin   int           `yaml:"query_promotion_min"`
	DecayFactor         float64       `yaml:"decay_factor"`
	ImportConcurrency   int           `yaml:"import_concurrency"`
	Delays              events.Delays `yaml:"delays"`
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.7,
		PromotionThreshold:  5,
		QueryPromotionMin:   3,
		DecayFactor:         0.995,
		ImportConcurrency:   4,
		Delays:              events.DefaultDelays(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = d.SimilarityThreshold
	}
	if o.PromotionThreshold <= 0 {
		o.PromotionThreshold = d.PromotionThreshold
	}
	if o.QueryPromotionMin <= 0 {
		o.QueryPromotionMin = d.QueryPromotionMin
	}
	if o.DecayFactor <= 0 || o.DecayFactor > 1 {
		o.DecayFactor = d.DecayFactor
	}
	if o.ImportConcurrency <= 0 {
		o.ImportConcurrency = d.ImportConcurrency
	}
	if o.Delays == (events.Delays{}) {
		o.Delays = d.Delays
	}
	return o
}

// Deps are the collaborators an Engine is built from. Generator, Bus,
// Logger and Counter are optional.
type Deps struct {
	Store     Store
	Index     Index
	Resolver  *entities.Resolver
	Generator llm.Generator
	Bus       *events.Broadcaster
	Logger    *zap.Logger
	Counter   *UsageCounter
}

// Engine orchestrates every graph operation.
type Engine struct {
	store    Store
	index    Index
	resolver *entities.Resolver
	gen      llm.Generator
	bus      *events.Broadcaster
	log      *zap.Logger
	validate *validator.Validate
	ontology *Ontology
	opts     Options

	// writeMu serializes find-or-create of entities and co-occurrence
	// linking so concurrent imports cannot duplicate either.
	writeMu sync.Mutex
}

// New builds an Engine.
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Store == nil || deps.Index == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("graph engine requires a store, an index and a resolver")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewBroadcaster(log)
	}
	opts = opts.withDefaults()
	e := &Engine{
		store:    deps.Store,
		index:    deps.Index,
		resolver: deps.Resolver,
		gen:      deps.Generator,
		bus:      bus,
		log:      log.Named("graph"),
		validate: validator.New(),
		opts:     opts,
	}
	e.ontology = NewOntology(deps.Store, deps.Counter, opts.PromotionThreshold, opts.QueryPromotionMin, e.recordAdaptation)
	return e, nil
}

// Events is the live feed of engine activity.
func (e *Engine) Events() *events.Broadcaster { return e.bus }

// Ontology exposes the promotion manager.
func (e *Engine) Ontology() *Ontology { return e.ontology }

// Options returns the effective tuning.
func (e *Engine) Options() Options { return e.opts }

// recordAdaptation appends to the adaptation log and broadcasts the entry.
func (e *Engine) recordAdaptation(ctx context.Context, kind, description string, details map[string]any) error {
	ev, err := e.store.LogAdaptation(ctx, kind, description, details)
	if err != nil {
		return err
	}
	e.bus.Publish(events.KindAdaptation, map[string]any{"event": ev})
	return nil
}

func (e *Engine) generationAvailable(ctx context.Context) bool {
	return e.gen != nil && e.gen.Available(ctx)
}
