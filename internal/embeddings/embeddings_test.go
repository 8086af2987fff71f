package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashProvider_Deterministic(t *testing.T) {
	p := NewHash(64)
	a, err := EmbedOne(context.Background(), p, "Alice works on Project Atlas")
	require.NoError(t, err)
	b, err := EmbedOne(context.Background(), p, "Alice works on Project Atlas")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, Cosine(a, b), 1e-6)
}

func TestHashProvider_SharedVocabularyIsCloser(t *testing.T) {
	p := NewHash(256)
	ctx := context.Background()
	base, _ := EmbedOne(ctx, p, "graph database indexing")
	near, _ := EmbedOne(ctx, p, "graph database indexes")
	far, _ := EmbedOne(ctx, p, "banana smoothie recipe")
	assert.Greater(t, Cosine(base, near), Cosine(base, far))
}

func TestHashProvider_EmptyText(t *testing.T) {
	v, err := EmbedOne(context.Background(), NewHash(8), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestWrapToDims(t *testing.T) {
	base := NewHash(4)
	assert.Same(t, base, WrapToDims(base, 4, ""))

	padded := WrapToDims(base, 6, "pad")
	v, err := EmbedOne(context.Background(), padded, "hello")
	require.NoError(t, err)
	assert.Len(t, v, 6)
	assert.Equal(t, float32(0), v[5])

	truncated := WrapToDims(NewHash(8), 3, "truncate")
	v, err = EmbedOne(context.Background(), truncated, "hello")
	require.NoError(t, err)
	assert.Len(t, v, 3)
	assert.Equal(t, 3, truncated.Dimensions())
}

func TestNew_SelectsProvider(t *testing.T) {
	p, err := New(Options{Dims: 16})
	require.NoError(t, err)
	assert.Equal(t, "hash", p.Name())
	assert.Equal(t, 16, p.Dimensions())

	p, err = New(Options{Provider: "ollama", Dims: 16})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, 16, p.Dimensions())

	_, err = New(Options{Provider: "openai"})
	assert.Error(t, err)

	_, err = New(Options{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestOpenAICompatible_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
			{"index": 1, "embedding": []float64{0, 1}},
			{"index": 0, "embedding": []float64{1, 0}},
		}})
	}))
	defer srv.Close()

	p := newOpenAICompatible("localai", srv.URL+"/v1", "test-model", "sk-test", time.Second)
	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestOllama_FallsBackToLegacyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			w.WriteHeader(http.StatusNotFound)
		case "/api/embeddings":
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.5, 0.5}})
		}
	}))
	defer srv.Close()

	p := newOllama(srv.URL, "nomic-embed-text", time.Second)
	vecs, err := p.Embed(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.5, 0.5}, vecs[1])
}

func TestOllama_ErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	_, err := newOllama(srv.URL, "missing", time.Second).Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}
