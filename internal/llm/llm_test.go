package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
)

type fakeGenerator struct {
	reply     string
	err       error
	available bool
	calls     atomic.Int32
	lastSys   string
	lastMax   int
}

func (f *fakeGenerator) Generate(_ context.Context, _, system string, maxTokens int, _ float64) (string, error) {
	f.calls.Add(1)
	f.lastSys = system
	f.lastMax = maxTokens
	return f.reply, f.err
}

func (f *fakeGenerator) Available(context.Context) bool { return f.available }

func TestBuildAnswerPrompt(t *testing.T) {
	nodes := make([]apptype.Node, 12)
	for i := range nodes {
		nodes[i] = apptype.Node{Name: "n", EntityType: apptype.TypePerson, Content: strings.Repeat("x", 300)}
	}
	nodes[0] = apptype.Node{Name: "Atlas", Content: "launch plan"}
	edges := []EdgeContext{
		{SourceName: "Alice", RelationType: "mentions", TargetName: "Atlas"},
		{SourceName: "", RelationType: "", TargetName: "Bob"},
	}
	p := BuildAnswerPrompt("what is atlas?", nodes, edges)

	assert.True(t, strings.HasPrefix(p, "Context:\n[note] Atlas: launch plan\n"))
	assert.Equal(t, 10, strings.Count(p, "\n["))
	assert.NotContains(t, p, strings.Repeat("x", 201))
	assert.Contains(t, p, "\n\nRelationships:\n- Alice --[mentions]--> Atlas\n- ? --[related_to]--> Bob")
	assert.True(t, strings.HasSuffix(p, "\n\nQuestion: what is atlas?\n\nAnswer:"))
}

func TestAnswerUsesAnswerSampling(t *testing.T) {
	g := &fakeGenerator{reply: "Atlas is a project."}
	out, err := Answer(context.Background(), g, "q", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Atlas is a project.", out)
	assert.Equal(t, AnswerMaxTokens, g.lastMax)
	assert.Equal(t, answerSystem, g.lastSys)
}

func TestSuggestSchemaType(t *testing.T) {
	ctx := context.Background()

	s := SuggestSchemaType(ctx, &fakeGenerator{reply: `{"name":"framework","description":"software frameworks"}`},
		[]string{"React", "Django"}, []string{"note"})
	assert.Equal(t, TypeSuggestion{Name: "framework", Description: "software frameworks"}, s)

	long := strings.Repeat("y", 150)
	s = SuggestSchemaType(ctx, &fakeGenerator{reply: long}, []string{"a"}, nil)
	assert.Equal(t, "concept", s.Name)
	assert.Len(t, s.Description, 100)

	s = SuggestSchemaType(ctx, &fakeGenerator{err: ErrUnavailable}, []string{"a"}, nil)
	assert.Equal(t, "concept", s.Name)

	s = SuggestSchemaType(ctx, nil, []string{"a"}, nil)
	assert.Equal(t, "concept", s.Name)
}

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			var req ollamaChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "phi3:mini", req.Model)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, float64(300), req.Options["num_predict"])
			_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": "hi"}})
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		}
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "", time.Second)
	out, err := o.Generate(context.Background(), "hello", "be brief", 300, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.True(t, o.Available(context.Background()))
}

func TestOllama_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'x' not found"}`))
	}))
	_, err := NewOllama(srv.URL, "x", time.Second).Generate(context.Background(), "p", "", 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.False(t, NewOllama(srv.URL, "x", time.Second).Available(context.Background()))
	srv.Close()

	_, err = NewOllama(srv.URL, "x", time.Second).Generate(context.Background(), "p", "", 10, 0)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &fakeGenerator{err: errors.New("boom"), available: true}
	g := WithBreakerSettings(inner, "test", BreakerSettings{
		MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 0.5, MinRequests: 2,
	}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.Generate(ctx, "p", "", 10, 0)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
	}
	_, err := g.Generate(ctx, "p", "", 10, 0)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.False(t, g.Available(ctx))
}

func TestNew(t *testing.T) {
	g, err := New(Options{Provider: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = New(Options{Provider: "ollama"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, g)

	_, err = New(Options{Provider: "openrouter"}, nil)
	assert.Error(t, err)

	g, err = New(Options{Provider: "openrouter", APIKey: "sk-or-test"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, g)

	_, err = New(Options{Provider: "bard"}, nil)
	assert.Error(t, err)
}
