package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// hashProvider is a deterministic bag-of-tokens embedder (feature hashing
// over word unigrams and character trigrams). Texts sharing vocabulary
// score high cosine similarity; no model or network is involved.
type hashProvider struct {
	dims int
}

// NewHash returns a hashing provider with the given dimensionality.
func NewHash(dims int) Provider {
	if dims <= 0 {
		dims = 256
	}
	return &hashProvider{dims: dims}
}

func (p *hashProvider) Name() string    { return "hash" }
func (p *hashProvider) Dimensions() int { return p.dims }

func (p *hashProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.embed(in)
	}
	return out, nil
}

func (p *hashProvider) embed(text string) []float32 {
	v := make([]float32, p.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		p.add(v, "w:"+w, 1.0)
		padded := []rune("#" + w + "#")
		for j := 0; j+3 <= len(padded); j++ {
			p.add(v, "t:"+string(padded[j:j+3]), 0.5)
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func (p *hashProvider) add(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}
