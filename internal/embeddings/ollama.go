package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

type ollamaProvider struct {
	host  string
	model string
	dims  int
	http  *http.Client
}

func newOllama(host, model string, timeout time.Duration) Provider {
	// cold model loads can take tens of seconds
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ollamaProvider{
		host:  strings.TrimRight(host, "/"),
		model: model,
		dims:  768,
		http:  &http.Client{Timeout: timeout},
	}
}

func (p *ollamaProvider) Name() string    { return "ollama" }
func (p *ollamaProvider) Dimensions() int { return p.dims }

func (p *ollamaProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	resp, err := p.post(ctx, "/api/embed", map[string]any{"model": p.model, "input": inputs})
	if err != nil && (isTimeout(err) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() == nil {
		resp, err = p.post(ctx, "/api/embed", map[string]any{"model": p.model, "input": inputs})
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		return p.embedLegacy(ctx, inputs)
	}
	defer resp.Body.Close()
	if err := ollamaStatus(resp); err != nil {
		return nil, err
	}
	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(out.Embeddings), len(inputs))
	}
	return out.Embeddings, nil
}

// embedLegacy uses the pre-0.2.6 single-prompt endpoint.
func (p *ollamaProvider) embedLegacy(ctx context.Context, inputs []string) ([][]float32, error) {
	results := make([][]float32, 0, len(inputs))
	for _, in := range inputs {
		resp, err := p.post(ctx, "/api/embeddings", map[string]any{"model": p.model, "prompt": in})
		if err != nil {
			return nil, err
		}
		var single struct {
			Embedding []float64 `json:"embedding"`
		}
		err = ollamaStatus(resp)
		if err == nil {
			err = json.NewDecoder(resp.Body).Decode(&single)
		}
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if len(single.Embedding) == 0 {
			return nil, fmt.Errorf("ollama returned no embedding")
		}
		results = append(results, f64to32(single.Embedding))
	}
	return results, nil
}

func (p *ollamaProvider) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.http.Do(req)
}

func ollamaStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var b struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&b)
	if b.Error != "" {
		return fmt.Errorf("ollama error: %s", b.Error)
	}
	return fmt.Errorf("ollama http status: %s", resp.Status)
}

// isTimeout returns true if the error represents a timeout
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
