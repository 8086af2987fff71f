package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// openAICompatible speaks the /v1/embeddings protocol shared by OpenAI and
// LocalAI-style servers.
type openAICompatible struct {
	name    string
	baseURL string
	model   string
	dims    int
	http    *http.Client
	apiKey  string
}

func newOpenAICompatible(name, baseURL, model, apiKey string, timeout time.Duration) Provider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dims := 1536
	if strings.Contains(model, "large") {
		dims = 3072
	}
	return &openAICompatible{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		dims:    dims,
		http:    &http.Client{Timeout: timeout},
		apiKey:  apiKey,
	}
}

func (p *openAICompatible) Name() string    { return p.name }
func (p *openAICompatible) Dimensions() int { return p.dims }

func (p *openAICompatible) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	body, err := json.Marshal(map[string]any{"model": p.model, "input": inputs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var b struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		if b.Error.Message != "" {
			return nil, fmt.Errorf("%s embeddings error: %s", p.name, b.Error.Message)
		}
		return nil, fmt.Errorf("%s embeddings http status: %s", p.name, resp.Status)
	}
	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(inputs) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", p.name, len(out.Data), len(inputs))
	}
	res := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		idx := d.Index
		if idx < 0 || idx >= len(res) {
			idx = i
		}
		res[idx] = f64to32(d.Embedding)
	}
	return res, nil
}

func f64to32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = float32(v[i])
	}
	return out
}
