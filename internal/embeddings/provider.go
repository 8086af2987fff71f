package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider defines a simple embeddings provider interface.
// Implementations should be concurrency-safe.
type Provider interface {
	// Name returns the provider name (e.g., "openai", "ollama").
	Name() string
	// Dimensions returns the embedding dimensionality this provider produces.
	Dimensions() int
	// Embed returns one embedding per input string.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Options selects and configures a provider.
type Options struct {
	Provider  string        `yaml:"provider"`
	Dims      int           `yaml:"dims"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"-"`
	Timeout   time.Duration `yaml:"timeout"`
	AdaptMode string        `yaml:"adapt_mode"`
}

// New constructs the provider named by opts.Provider and adapts its output
// to opts.Dims. "hash" (the default) needs no external service.
func New(opts Options) (Provider, error) {
	var p Provider
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "hash":
		return NewHash(opts.Dims), nil
	case "openai":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings require an api key")
		}
		p = newOpenAICompatible("openai", orDefault(opts.BaseURL, "https://api.openai.com/v1"),
			orDefault(opts.Model, "text-embedding-3-small"), opts.APIKey, opts.Timeout)
	case "localai", "llamacpp", "llama.cpp":
		p = newOpenAICompatible("localai", orDefault(opts.BaseURL, "http://localhost:8080/v1"),
			orDefault(opts.Model, "text-embedding-ada-002"), opts.APIKey, opts.Timeout)
	case "ollama":
		p = newOllama(orDefault(opts.BaseURL, "http://localhost:11434"),
			orDefault(opts.Model, "nomic-embed-text"), opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", opts.Provider)
	}
	return WrapToDims(p, opts.Dims, opts.AdaptMode), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%s returned %d embeddings for 1 input", p.Name(), len(vecs))
	}
	return vecs[0], nil
}
