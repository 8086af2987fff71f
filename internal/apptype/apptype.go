package apptype

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ErrNotFound is returned when a referenced node or edge does not exist.
var ErrNotFound = errors.New("not found")

// Edge weights are clamped to this range by every mutation.
const (
	MinEdgeWeight = 0.1
	MaxEdgeWeight = 10.0
)

// Relation types produced by the engine.
const (
	RelMentions  = "mentions"
	RelCoOccurs  = "co_occurs"
	RelSimilarTo = "similar_to"
)

// TypeName is an open-ended node category. The schema registry, not this
// type, decides which names are first-class.
type TypeName string

// Seed types always present in the schema registry.
const (
	TypeNote   TypeName = "note"
	TypePerson TypeName = "person"
	TypePlace  TypeName = "place"
	TypeThing  TypeName = "thing"
)

// SeedTypes is the bootstrap set of schema types.
var SeedTypes = []TypeName{TypeNote, TypePerson, TypePlace, TypeThing}

const maxTypeNameLen = 64

// ParseTypeName normalizes s (trimmed, lowercased) and validates it.
func ParseTypeName(s string) (TypeName, error) {
	t := TypeName(strings.ToLower(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate reports whether t is a usable type name.
func (t TypeName) Validate() error {
	if t == "" {
		return fmt.Errorf("type name cannot be empty")
	}
	if len(t) > maxTypeNameLen {
		return fmt.Errorf("type name %q exceeds %d characters", string(t), maxTypeNameLen)
	}
	for _, r := range string(t) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			continue
		}
		return fmt.Errorf("type name %q contains invalid character %q", string(t), r)
	}
	return nil
}

// IsSeed reports whether t belongs to the bootstrap set.
func (t TypeName) IsSeed() bool {
	for _, s := range SeedTypes {
		if s == t {
			return true
		}
	}
	return false
}

func (t TypeName) String() string { return string(t) }

// NormalizeName lowercases s and collapses whitespace. It is the key used
// for case-insensitive name lookups.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ScoredID is a node id ranked by similarity.
type ScoredID struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// ClampWeight bounds w to [MinEdgeWeight, MaxEdgeWeight].
func ClampWeight(w float64) float64 {
	if w < MinEdgeWeight {
		return MinEdgeWeight
	}
	if w > MaxEdgeWeight {
		return MaxEdgeWeight
	}
	return w
}

// Node is a typed entity or note in the graph.
type Node struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	EntityType  TypeName       `json:"entityType"`
	Content     string         `json:"content,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	AccessCount int            `json:"accessCount"`
	MergedInto  string         `json:"mergedInto,omitempty"`
}

// IsTombstone reports whether the node was absorbed by a merge.
func (n Node) IsTombstone() bool { return n.MergedInto != "" }

// Edge is a weighted, typed relation between two nodes.
type Edge struct {
	ID             string         `json:"id"`
	SourceID       string         `json:"sourceId"`
	TargetID       string         `json:"targetId"`
	RelationType   string         `json:"relationType"`
	Weight         float64        `json:"weight"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	LastTraversed  *time.Time     `json:"lastTraversed,omitempty"`
	TraversalCount int            `json:"traversalCount"`
}

// Other returns the endpoint of e opposite to id.
func (e Edge) Other(id string) string {
	if e.SourceID == id {
		return e.TargetID
	}
	return e.SourceID
}

// SchemaType is a registered node category.
type SchemaType struct {
	Name        TypeName  `json:"name"`
	Count       int       `json:"count"`
	IsSeed      bool      `json:"isSeed"`
	EvolvedFrom string    `json:"evolvedFrom,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Adaptation event types.
const (
	EventNoteAdded      = "note_added"
	EventTypeCreated    = "type_created"
	EventTypePromoted   = "type_promoted"
	EventEntitiesMerged = "entities_merged"
	EventEdgeConfirmed  = "edge_confirmed"
	EventEdgeRejected   = "edge_rejected"
)

// AdaptationEvent is an append-only audit record.
type AdaptationEvent struct {
	ID          int64          `json:"id"`
	EventType   string         `json:"eventType"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Details     map[string]any `json:"details,omitempty"`
}

// Metrics are the process-wide query counters.
type Metrics struct {
	TotalQueries   int64   `json:"totalQueries"`
	LLMCalls       int64   `json:"llmCalls"`
	TotalLatencyMs float64 `json:"totalLatencyMs"`
	AvgLatencyMs   float64 `json:"avgLatencyMs"`
}

// GraphState is a point-in-time summary of the graph.
type GraphState struct {
	NodeCount    int          `json:"nodeCount"`
	EdgeCount    int          `json:"edgeCount"`
	SchemaTypes  []SchemaType `json:"schemaTypes"`
	TotalQueries int64        `json:"totalQueries"`
	LLMCalls     int64        `json:"llmCalls"`
	AvgLatencyMs float64      `json:"avgLatencyMs"`
}

// NoteInput is a note prior to ingestion.
type NoteInput struct {
	Title   string   `json:"title,omitempty" yaml:"title" validate:"max=512"`
	Content string   `json:"content" yaml:"content" validate:"required,max=200000"`
	Tags    []string `json:"tags,omitempty" yaml:"tags" validate:"max=64,dive,max=128"`
}

// IngestResult describes the graph changes produced by one note.
type IngestResult struct {
	Note     Node   `json:"note"`
	Entities []Node `json:"entities"`
	Edges    []Edge `json:"edges"`
}

// QueryRequest is a natural-language query against the graph.
type QueryRequest struct {
	Query         string `json:"query" validate:"required,max=4096"`
	MaxResults    int    `json:"maxResults,omitempty" validate:"omitempty,min=1,max=100"`
	UseGeneration bool   `json:"useGeneration"`
}

// QueryResult is the outcome of a query with its traversal explanation.
type QueryResult struct {
	Nodes          []Node   `json:"nodes"`
	Edges          []Edge   `json:"edges"`
	TraversalPath  []string `json:"traversalPath"`
	Response       string   `json:"response,omitempty"`
	LatencyMs      float64  `json:"latencyMs"`
	UsedGeneration bool     `json:"usedGeneration"`
}

// MergeRequest folds MergeIDs into KeepID.
type MergeRequest struct {
	KeepID   string   `json:"keepId" validate:"required"`
	MergeIDs []string `json:"mergeIds" validate:"required,min=1,dive,required"`
}
