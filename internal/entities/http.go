package entities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"
)

// HTTPExtractor calls a zero-shot NER service (GLiNER served over HTTP).
//
// Request:  POST {base}/extract {"text": ..., "labels": [...], "threshold": 0.3}
// Response: {"entities": [{"text","label","start","end","score"}]}
type HTTPExtractor struct {
	endpoint string
	http     *http.Client
}

// NewHTTPExtractor targets the service at baseURL.
func NewHTTPExtractor(baseURL string, timeout time.Duration) (*HTTPExtractor, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid extractor url: %w", err)
	}
	u.Path = path.Join(u.Path, "/extract")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPExtractor{endpoint: u.String(), http: &http.Client{Timeout: timeout}}, nil
}

type extractRequest struct {
	Text      string   `json:"text"`
	Labels    []string `json:"labels"`
	Threshold float64  `json:"threshold"`
}

func (x *HTTPExtractor) Extract(ctx context.Context, text string, labels []string, threshold float64) ([]Span, error) {
	if text == "" {
		return nil, nil
	}
	body, err := json.Marshal(extractRequest{Text: text, Labels: labels, Threshold: threshold})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := x.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var b struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&b)
		if b.Error != "" {
			return nil, fmt.Errorf("extractor error: %s", b.Error)
		}
		return nil, fmt.Errorf("extractor http status: %s", resp.Status)
	}
	var out struct {
		Entities []Span `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode extractor response: %w", err)
	}
	kept := out.Entities[:0]
	for _, s := range out.Entities {
		if s.Score >= threshold && s.Text != "" {
			kept = append(kept, s)
		}
	}
	return kept, nil
}
