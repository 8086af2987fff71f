package knowledge

import (
	"time"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/config"
)

// Config exposes a stable wrapper for embedding the engine as a library.
// Zero values take the same defaults as the environment-driven server.
type Config struct {
	URL           string
	AuthToken     string
	EmbeddingDims int
	MaxOpenConns  int

	EmbeddingsProvider string
	EmbeddingsModel    string
	EmbeddingsBaseURL  string
	EmbeddingsAPIKey   string
	// VectorBackend is "libsql" or "memory".
	VectorBackend string

	// ExtractorURL points at an HTTP span extractor. Empty selects the
	// built-in heuristic extractor.
	ExtractorURL    string
	EntityThreshold float64

	// LLMProvider is "ollama", "openrouter" or "none".
	LLMProvider      string
	LLMModel         string
	OllamaHost       string
	OpenRouterAPIKey string

	SimilarityThreshold float64
	PromotionThreshold  int
	DecayFactor         float64
	ImportConcurrency   int
}

func (c *Config) toInternal() *config.Config {
	cfg := &config.Config{
		Environment: "development",
		LogLevel:    "info",
		Database: config.DatabaseConfig{
			URL:          orString(c.URL, "file:./knowledge.db"),
			AuthToken:    c.AuthToken,
			MaxOpenConns: orInt(c.MaxOpenConns, 1),
		},
		Embeddings: config.EmbeddingsConfig{
			Provider:      orString(c.EmbeddingsProvider, "hash"),
			Dims:          orInt(c.EmbeddingDims, 256),
			Model:         c.EmbeddingsModel,
			BaseURL:       c.EmbeddingsBaseURL,
			APIKey:        c.EmbeddingsAPIKey,
			Timeout:       30 * time.Second,
			VectorBackend: orString(c.VectorBackend, "libsql"),
		},
		Extractor: config.ExtractorConfig{
			URL:       c.ExtractorURL,
			Timeout:   30 * time.Second,
			Threshold: c.EntityThreshold,
		},
		LLM: config.LLMConfig{
			Provider:         orString(c.LLMProvider, "none"),
			Model:            c.LLMModel,
			OllamaHost:       orString(c.OllamaHost, "http://localhost:11434"),
			OpenRouterAPIKey: c.OpenRouterAPIKey,
			Timeout:          60 * time.Second,
		},
		Graph: config.GraphConfig{
			SimilarityThreshold: c.SimilarityThreshold,
			PromotionThreshold:  c.PromotionThreshold,
			DecayFactor:         c.DecayFactor,
			ImportConcurrency:   c.ImportConcurrency,
		},
		Server: config.ServerConfig{Transport: "stdio"},
	}
	if cfg.Graph.DecayFactor == 0 {
		cfg.Graph.DecayFactor = 0.995
	}
	return cfg
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
