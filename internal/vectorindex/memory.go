// Package vectorindex holds the in-process similarity index used when
// vectors should not be persisted alongside the graph.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/embeddings"
)

// Memory is a brute-force cosine index guarded by a RWMutex.
type Memory struct {
	provider embeddings.Provider

	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemory returns an empty index that embeds with provider.
func NewMemory(provider embeddings.Provider) *Memory {
	return &Memory{provider: provider, vectors: make(map[string][]float32)}
}

func (m *Memory) Add(ctx context.Context, id, text string) error {
	vec, err := embeddings.EmbedOne(ctx, m.provider, text)
	if err != nil {
		return fmt.Errorf("failed to embed node %s: %w", id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if isZero(vec) {
		delete(m.vectors, id)
		return nil
	}
	m.vectors[id] = vec
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.vectors, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	m.vectors = make(map[string][]float32)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors), nil
}

// Search embeds text and ranks every indexed node against it.
func (m *Memory) Search(ctx context.Context, text string, k int) ([]apptype.ScoredID, error) {
	vec, err := embeddings.EmbedOne(ctx, m.provider, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if isZero(vec) {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rank(vec, k, ""), nil
}

// SimilarTo ranks indexed nodes against id's vector, excluding id.
func (m *Memory) SimilarTo(_ context.Context, id string, k int) ([]apptype.ScoredID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.vectors[id]
	if !ok {
		return nil, nil
	}
	return m.rank(vec, k, id), nil
}

// Similarity is the cosine similarity of two indexed nodes, 0 if either is
// missing.
func (m *Memory) Similarity(_ context.Context, a, b string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	va, ok := m.vectors[a]
	if !ok {
		return 0, nil
	}
	vb, ok := m.vectors[b]
	if !ok {
		return 0, nil
	}
	return embeddings.Cosine(va, vb), nil
}

func (m *Memory) rank(vec []float32, k int, exclude string) []apptype.ScoredID {
	if k <= 0 {
		k = 10
	}
	out := make([]apptype.ScoredID, 0, len(m.vectors))
	for id, v := range m.vectors {
		if id == exclude {
			continue
		}
		out = append(out, apptype.ScoredID{ID: id, Score: embeddings.Cosine(vec, v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
