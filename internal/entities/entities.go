// Package entities extracts entity spans from text and prepares them for
// resolution against existing graph nodes.
package entities

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
)

// DefaultThreshold is the minimum extraction confidence kept.
const DefaultThreshold = 0.3

// DefaultLabels is the label set offered to extractors.
var DefaultLabels = []string{
	"person", "organization", "location", "concept",
	"project", "technology", "date", "event",
}

// Span is one extracted entity mention. End is exclusive.
type Span struct {
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Extractor finds entity spans in text for the given labels.
type Extractor interface {
	Extract(ctx context.Context, text string, labels []string, threshold float64) ([]Span, error)
}

// MergeOverlapping resolves overlapping spans with a greedy left-to-right
// sweep, keeping the higher-scoring span of each overlapping pair.
func MergeOverlapping(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].Score > sorted[j].Score
	})

	merged := make([]Span, 0, len(sorted))
	current := sorted[0]
	for _, s := range sorted[1:] {
		if s.Start < current.End {
			if s.Score > current.Score {
				current = s
			}
			continue
		}
		merged = append(merged, current)
		current = s
	}
	return append(merged, current)
}

var hintCues = []struct {
	words  []string
	labels []string
}{
	{[]string{"who", "person", "people"}, []string{"person", "organization"}},
	{[]string{"where", "place", "location"}, []string{"location", "organization"}},
	{[]string{"when", "date", "time"}, []string{"date", "event"}},
}

// LabelsForHint returns DefaultLabels re-prioritized by the first matching
// interrogative cue in hint, deduplicated in first-seen order.
func LabelsForHint(hint string) []string {
	labels := append([]string(nil), DefaultLabels...)
	if hint == "" {
		return labels
	}
	lower := strings.ToLower(hint)
	for _, cue := range hintCues {
		if !containsAny(lower, cue.words) {
			continue
		}
		labels = dedupe(append(append([]string(nil), cue.labels...), labels...))
		break
	}
	return labels
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Normalize lowercases s and collapses runs of whitespace.
func Normalize(s string) string {
	return apptype.NormalizeName(s)
}

var labelTypes = map[string]apptype.TypeName{
	"person":       apptype.TypePerson,
	"organization": apptype.TypeThing,
	"location":     apptype.TypePlace,
	"concept":      "concept",
	"project":      "project",
	"technology":   "concept",
	"date":         apptype.TypeThing,
	"event":        apptype.TypeThing,
}

// TypeForLabel maps an extraction label to the node type it creates.
func TypeForLabel(label string) apptype.TypeName {
	if t, ok := labelTypes[strings.ToLower(label)]; ok {
		return t
	}
	return apptype.TypeThing
}

// Resolver wraps an Extractor with the label and threshold policy used
// during ingestion and querying.
type Resolver struct {
	ex        Extractor
	threshold float64
}

// NewResolver returns a Resolver; threshold <= 0 uses DefaultThreshold.
func NewResolver(ex Extractor, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Resolver{ex: ex, threshold: threshold}
}

// ExtractClean extracts with the default labels and merges overlaps.
func (r *Resolver) ExtractClean(ctx context.Context, text string) ([]Span, error) {
	spans, err := r.ex.Extract(ctx, text, DefaultLabels, r.threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to extract entities: %w", err)
	}
	return MergeOverlapping(spans), nil
}

// ExtractWithContext extracts with labels re-prioritized by hint.
func (r *Resolver) ExtractWithContext(ctx context.Context, text, hint string) ([]Span, error) {
	spans, err := r.ex.Extract(ctx, text, LabelsForHint(hint), r.threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to extract entities: %w", err)
	}
	return spans, nil
}
