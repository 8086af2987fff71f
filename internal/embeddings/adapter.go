package embeddings

import (
	"context"
	"strings"
)

// adaptingProvider coerces a provider's vectors to the store's column width.
type adaptingProvider struct {
	base       Provider
	targetDims int
	mode       string // "pad_or_truncate" (default), "truncate", "pad"
}

// WrapToDims returns a Provider that adapts output vectors to targetDims.
// If base already matches targetDims, base is returned unchanged.
func WrapToDims(base Provider, targetDims int, mode string) Provider {
	if base == nil || targetDims <= 0 || base.Dimensions() == targetDims {
		return base
	}
	m := strings.ToLower(strings.TrimSpace(mode))
	if m == "" {
		m = "pad_or_truncate"
	}
	return &adaptingProvider{base: base, targetDims: targetDims, mode: m}
}

func (p *adaptingProvider) Name() string    { return p.base.Name() }
func (p *adaptingProvider) Dimensions() int { return p.targetDims }

func (p *adaptingProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	vecs, err := p.base.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		out[i] = adaptVector(v, p.targetDims)
	}
	return out, nil
}

// adaptVector zero-pads short vectors and truncates long ones. All three
// modes agree on that outcome; mode only documents operator intent.
func adaptVector(v []float32, target int) []float32 {
	switch {
	case target <= 0 || len(v) == target:
		return v
	case len(v) > target:
		return v[:target]
	default:
		out := make([]float32, target)
		copy(out, v)
		return out
	}
}
