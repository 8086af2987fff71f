package entities

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
)

func TestMergeOverlapping_DropsLowerScoringOverlap(t *testing.T) {
	spans := []Span{
		{Text: "b", Start: 3, End: 8, Score: 0.6},
		{Text: "c", Start: 10, End: 15, Score: 0.8},
		{Text: "a", Start: 0, End: 5, Score: 0.9},
	}
	merged := MergeOverlapping(spans)
	require.Len(t, merged, 2)
	assert.Equal(t, [2]int{0, 5}, [2]int{merged[0].Start, merged[0].End})
	assert.Equal(t, [2]int{10, 15}, [2]int{merged[1].Start, merged[1].End})
}

func TestMergeOverlapping_HigherScoreReplacesCurrent(t *testing.T) {
	merged := MergeOverlapping([]Span{
		{Start: 0, End: 5, Score: 0.4},
		{Start: 2, End: 9, Score: 0.7},
	})
	require.Len(t, merged, 1)
	assert.Equal(t, 2, merged[0].Start)
}

func TestMergeOverlapping_GreedyChain(t *testing.T) {
	// a overlaps b, b overlaps c, a does not overlap c.
	merged := MergeOverlapping([]Span{
		{Text: "a", Start: 0, End: 4, Score: 0.9},
		{Text: "b", Start: 3, End: 7, Score: 0.5},
		{Text: "c", Start: 6, End: 10, Score: 0.8},
	})
	require.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].Text)
	assert.Equal(t, "c", merged[1].Text)
}

func TestMergeOverlapping_Empty(t *testing.T) {
	assert.Nil(t, MergeOverlapping(nil))
}

func TestMergeOverlapping_AdjacentSpansKept(t *testing.T) {
	merged := MergeOverlapping([]Span{{Start: 0, End: 5, Score: 0.5}, {Start: 5, End: 9, Score: 0.9}})
	assert.Len(t, merged, 2)
}

func TestLabelsForHint(t *testing.T) {
	tests := []struct {
		hint string
		head []string
	}{
		{"", []string{"person", "organization", "location"}},
		{"Who did I meet?", []string{"person", "organization", "location"}},
		{"where was the offsite", []string{"location", "organization", "person"}},
		{"When is the launch", []string{"date", "event", "person"}},
		{"who was there and when", []string{"person", "organization", "location"}},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			labels := LabelsForHint(tt.hint)
			assert.Len(t, labels, len(DefaultLabels))
			assert.Equal(t, tt.head, labels[:3])
		})
	}
	// DefaultLabels must not be mutated by reprioritization.
	assert.Equal(t, "person", DefaultLabels[0])
	assert.Equal(t, "date", DefaultLabels[6])
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alice smith", Normalize("  Alice \t SMITH\n"))
	assert.Equal(t, "", Normalize("   "))
}

func TestTypeForLabel(t *testing.T) {
	assert.Equal(t, apptype.TypePerson, TypeForLabel("person"))
	assert.Equal(t, apptype.TypeThing, TypeForLabel("organization"))
	assert.Equal(t, apptype.TypePlace, TypeForLabel("Location"))
	assert.Equal(t, apptype.TypeName("concept"), TypeForLabel("technology"))
	assert.Equal(t, apptype.TypeName("project"), TypeForLabel("project"))
	assert.Equal(t, apptype.TypeThing, TypeForLabel("spaceship"))
}

func TestHeuristic_CapitalizedPhrasesAndDates(t *testing.T) {
	text := "Alice Smith met Bob at Acme Corp in 2024."
	spans, err := Heuristic{}.Extract(context.Background(), text, DefaultLabels, DefaultThreshold)
	require.NoError(t, err)

	byText := map[string]Span{}
	for _, s := range spans {
		byText[s.Text] = s
		assert.Equal(t, s.Text, text[s.Start:s.End])
	}
	require.Contains(t, byText, "Alice Smith")
	require.Contains(t, byText, "Bob")
	require.Contains(t, byText, "Acme Corp")
	require.Contains(t, byText, "2024")
	assert.Equal(t, "person", byText["Alice Smith"].Label)
	assert.Equal(t, "date", byText["2024"].Label)
}

func TestHeuristic_RespectsLabelPriority(t *testing.T) {
	spans, err := Heuristic{}.Extract(context.Background(), "where is Acme", LabelsForHint("where is Acme"), DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "Acme", spans[0].Text)
	assert.Equal(t, "location", spans[0].Label)
}

func TestHeuristic_SkipsStopWordsAndThreshold(t *testing.T) {
	spans, err := Heuristic{}.Extract(context.Background(), "The meeting ran long.", DefaultLabels, DefaultThreshold)
	require.NoError(t, err)
	assert.Empty(t, spans)

	spans, err = Heuristic{}.Extract(context.Background(), "Met Carol", DefaultLabels, 0.9)
	require.NoError(t, err)
	assert.Empty(t, spans)
}

type stubExtractor struct {
	spans  []Span
	err    error
	labels []string
}

func (s *stubExtractor) Extract(_ context.Context, _ string, labels []string, _ float64) ([]Span, error) {
	s.labels = labels
	return s.spans, s.err
}

func TestResolver(t *testing.T) {
	stub := &stubExtractor{spans: []Span{
		{Text: "Ada", Start: 0, End: 3, Label: "person", Score: 0.9},
		{Text: "Ada L", Start: 0, End: 5, Label: "person", Score: 0.5},
	}}
	r := NewResolver(stub, 0)

	clean, err := r.ExtractClean(context.Background(), "Ada L")
	require.NoError(t, err)
	assert.Len(t, clean, 1)
	assert.Equal(t, DefaultLabels, stub.labels)

	raw, err := r.ExtractWithContext(context.Background(), "Ada L", "when")
	require.NoError(t, err)
	assert.Len(t, raw, 2)
	assert.Equal(t, "date", stub.labels[0])

	stub.err = errors.New("model offline")
	_, err = r.ExtractClean(context.Background(), "x")
	assert.Error(t, err)
}

func TestHTTPExtractor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"person"}, req.Labels)
		_ = json.NewEncoder(w).Encode(map[string]any{"entities": []Span{
			{Text: "Grace Hopper", Start: 0, End: 12, Label: "person", Score: 0.92},
			{Text: "noise", Start: 13, End: 18, Label: "person", Score: 0.1},
		}})
	}))
	defer srv.Close()

	x, err := NewHTTPExtractor(srv.URL, time.Second)
	require.NoError(t, err)
	spans, err := x.Extract(context.Background(), "Grace Hopper noise", []string{"person"}, 0.3)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "Grace Hopper", spans[0].Text)
}

func TestHTTPExtractor_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	x, err := NewHTTPExtractor(srv.URL, time.Second)
	require.NoError(t, err)
	_, err = x.Extract(context.Background(), "text", DefaultLabels, 0.3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}
