// Package events defines the progress-event contract emitted during
// ingestion and query traversal, plus the sinks that deliver it.
package events

import (
	"time"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

// Kind classifies an event envelope.
type Kind string

const (
	KindQueryTraversal Kind = "query_traversal"
	KindGraphUpdate    Kind = "graph_update"
	KindAdaptation     Kind = "adaptation"
	KindImportStatus   Kind = "import_status"
	KindImportProgress Kind = "import_progress"
	KindGraphCleared   Kind = "graph_cleared"
)

// Phase is a query traversal stage. Phases are emitted strictly in Order.
type Phase string

const (
	PhaseEmbeddingSearch Phase = "embedding_search"
	PhaseEdgeExpansion   Phase = "edge_expansion"
	PhaseEntityMatch     Phase = "entity_match"
	PhaseLLMThinking     Phase = "llm_thinking"
	PhaseComplete        Phase = "complete"
)

// Order returns the position of p in the traversal sequence, or -1.
func (p Phase) Order() int {
	switch p {
	case PhaseEmbeddingSearch:
		return 0
	case PhaseEdgeExpansion:
		return 1
	case PhaseEntityMatch:
		return 2
	case PhaseLLMThinking:
		return 3
	case PhaseComplete:
		return 4
	}
	return -1
}

// Event is one progress notification. DelayMs is an animation hint for
// consumers; emitters never sleep on it.
type Event struct {
	Type       Kind           `json:"type"`
	Phase      Phase          `json:"phase,omitempty"`
	Seq        int            `json:"seq"`
	QueryID    string         `json:"query_id,omitempty"`
	NodeID     string         `json:"node_id,omitempty"`
	EdgeID     string         `json:"edge_id,omitempty"`
	Score      float64        `json:"score"`
	Discovered bool           `json:"discovered,omitempty"`
	DelayMs    int            `json:"delay_ms,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Delays holds the per-phase pacing hints attached to traversal events.
type Delays struct {
	EmbeddingSearch int `yaml:"embedding_search"`
	EdgeExpansion   int `yaml:"edge_expansion"`
	Discovery       int `yaml:"discovery"`
	EntityMatch     int `yaml:"entity_match"`
	LLMThinking     int `yaml:"llm_thinking"`
	Complete        int `yaml:"complete"`
}

// DefaultDelays matches the front-end animation cadence.
func DefaultDelays() Delays {
	return Delays{
		EmbeddingSearch: 120,
		EdgeExpansion:   100,
		Discovery:       120,
		EntityMatch:     120,
		LLMThinking:     250,
		Complete:        50,
	}
}

// Sink receives events. Emit must not block on slow consumers.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

type discard struct{}

func (discard) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discard{}

type tee []Sink

func (t tee) Emit(ev Event) {
	for _, s := range t {
		s.Emit(ev)
	}
}

// Tee fans ev out to every non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	out := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if s != nil && s != Discard {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Discard
	case 1:
		return out[0]
	}
	return out
}

// Sequencer stamps Seq, QueryID and Timestamp on events before forwarding.
// It is owned by a single producer.
type Sequencer struct {
	sink    Sink
	queryID string
	next    int
}

// NewSequencer wraps sink for one producer run identified by id.
func NewSequencer(id string, sink Sink) *Sequencer {
	if sink == nil {
		sink = Discard
	}
	return &Sequencer{sink: sink, queryID: id}
}

// Emit forwards ev with producer-assigned ordering fields.
func (s *Sequencer) Emit(ev Event) {
	ev.Seq = s.next
	s.next++
	if ev.QueryID == "" {
		ev.QueryID = s.queryID
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = nowUTC()
	}
	metrics.Default().IncEvent(string(ev.Type), string(ev.Phase))
	s.sink.Emit(ev)
}

func nowUTC() time.Time { return time.Now().UTC() }

// Emitted returns the number of events forwarded so far.
func (s *Sequencer) Emitted() int { return s.next }
