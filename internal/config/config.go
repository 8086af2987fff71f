// Package config loads process configuration from the environment, an
// optional .env file, and an optional YAML file of engine tunables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/database"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/embeddings"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/graph"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/llm"
)

// Config holds all process configuration.
type Config struct {
	Environment string `env:"KG_ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"KG_LOG_LEVEL" envDefault:"info"`
	ConfigFile  string `env:"KG_CONFIG_FILE"`

	Database   DatabaseConfig
	Embeddings EmbeddingsConfig
	Extractor  ExtractorConfig
	LLM        LLMConfig
	Graph      GraphConfig
	Server     ServerConfig
	Metrics    MetricsConfig
}

// DatabaseConfig selects the libSQL store.
type DatabaseConfig struct {
	URL          string `env:"LIBSQL_URL" envDefault:"file:./knowledge.db"`
	AuthToken    string `env:"LIBSQL_AUTH_TOKEN"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"1"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS"`
	ConnMaxIdle  int    `env:"DB_CONN_MAX_IDLE_SEC"`
	ConnMaxLife  int    `env:"DB_CONN_MAX_LIFETIME_SEC"`
}

// EmbeddingsConfig selects the embeddings provider and the similarity index.
type EmbeddingsConfig struct {
	Provider  string        `env:"EMBEDDINGS_PROVIDER" envDefault:"hash"`
	Dims      int           `env:"EMBEDDING_DIMS" envDefault:"256"`
	Model     string        `env:"EMBEDDINGS_MODEL"`
	BaseURL   string        `env:"EMBEDDINGS_BASE_URL"`
	APIKey    string        `env:"EMBEDDINGS_API_KEY"`
	Timeout   time.Duration `env:"EMBEDDINGS_TIMEOUT" envDefault:"30s"`
	AdaptMode string        `env:"EMBEDDINGS_ADAPT_MODE" envDefault:"pad_or_truncate"`
	// VectorBackend is "libsql" (persisted F32_BLOB column) or "memory".
	VectorBackend string `env:"KG_VECTOR_BACKEND" envDefault:"libsql"`
}

// ExtractorConfig selects the entity extractor. An empty URL uses the
// built-in heuristic extractor.
type ExtractorConfig struct {
	URL       string        `env:"KG_EXTRACTOR_URL"`
	Timeout   time.Duration `env:"KG_EXTRACTOR_TIMEOUT" envDefault:"30s"`
	Threshold float64       `env:"KG_ENTITY_THRESHOLD" envDefault:"0.3"`
}

// LLMConfig selects the optional answer generator.
type LLMConfig struct {
	Provider         string        `env:"KG_LLM_PROVIDER" envDefault:"ollama"`
	Model            string        `env:"KG_LLM_MODEL"`
	OllamaHost       string        `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	OpenRouterAPIKey string        `env:"OPENROUTER_API_KEY"`
	Timeout          time.Duration `env:"KG_LLM_TIMEOUT" envDefault:"60s"`
}

// GraphConfig carries the engine tunables.
type GraphConfig struct {
	SimilarityThreshold float64 `env:"KG_SIMILARITY_THRESHOLD" envDefault:"0.7"`
	PromotionThreshold  int     `env:"KG_PROMOTION_THRESHOLD" envDefault:"5"`
	QueryPromotionMin   int     `env:"KG_QUERY_PROMOTION_MIN" envDefault:"3"`
	DecayFactor         float64 `env:"KG_DECAY_FACTOR" envDefault:"0.995"`
	ImportConcurrency   int     `env:"KG_IMPORT_CONCURRENCY" envDefault:"4"`
}

// ServerConfig selects the MCP transport.
type ServerConfig struct {
	Transport   string `env:"KG_TRANSPORT" envDefault:"stdio"`
	Addr        string `env:"KG_ADDR" envDefault:":8080"`
	SSEEndpoint string `env:"KG_SSE_ENDPOINT" envDefault:"/sse"`
}

// MetricsConfig toggles the Prometheus exporter.
type MetricsConfig struct {
	Prometheus bool   `env:"METRICS_PROMETHEUS" envDefault:"false"`
	Addr       string `env:"METRICS_ADDR" envDefault:":9090"`
}

// fileOverlay is the YAML document shape. Only present keys override.
type fileOverlay struct {
	Graph *graph.Options `yaml:"graph"`
}

// Load reads .env (if present), parses the environment, and overlays
// graph tunables from the YAML file at path or KG_CONFIG_FILE.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if path != "" {
		cfg.ConfigFile = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Embeddings.Dims <= 0 || c.Embeddings.Dims > 65536 {
		return fmt.Errorf("EMBEDDING_DIMS must be between 1 and 65536, got %d", c.Embeddings.Dims)
	}
	switch c.Embeddings.VectorBackend {
	case "libsql", "memory":
	default:
		return fmt.Errorf("KG_VECTOR_BACKEND must be libsql or memory, got %q", c.Embeddings.VectorBackend)
	}
	switch c.Server.Transport {
	case "stdio", "sse":
	default:
		return fmt.Errorf("KG_TRANSPORT must be stdio or sse, got %q", c.Server.Transport)
	}
	if c.Graph.DecayFactor <= 0 || c.Graph.DecayFactor > 1 {
		return fmt.Errorf("KG_DECAY_FACTOR must be in (0, 1], got %v", c.Graph.DecayFactor)
	}
	return nil
}

// GraphOptions builds engine options from the environment, then applies
// the YAML overlay when a config file is set.
func (c *Config) GraphOptions() (graph.Options, error) {
	opts := graph.DefaultOptions()
	opts.SimilarityThreshold = c.Graph.SimilarityThreshold
	opts.PromotionThreshold = c.Graph.PromotionThreshold
	opts.QueryPromotionMin = c.Graph.QueryPromotionMin
	opts.DecayFactor = c.Graph.DecayFactor
	opts.ImportConcurrency = c.Graph.ImportConcurrency

	if c.ConfigFile == "" {
		return opts, nil
	}
	raw, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return opts, fmt.Errorf("failed to read config file: %w", err)
	}
	overlay := fileOverlay{Graph: &opts}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return opts, fmt.Errorf("failed to parse config file %s: %w", c.ConfigFile, err)
	}
	return opts, nil
}

// DatabaseConfig maps to the store's configuration.
func (c *Config) DatabaseConfig() *database.Config {
	return &database.Config{
		URL:            c.Database.URL,
		AuthToken:      c.Database.AuthToken,
		EmbeddingDims:  c.Embeddings.Dims,
		MaxOpenConns:   c.Database.MaxOpenConns,
		MaxIdleConns:   c.Database.MaxIdleConns,
		ConnMaxIdleSec: c.Database.ConnMaxIdle,
		ConnMaxLifeSec: c.Database.ConnMaxLife,
	}
}

// EmbeddingsOptions maps to the embeddings provider options.
func (c *Config) EmbeddingsOptions() embeddings.Options {
	return embeddings.Options{
		Provider:  c.Embeddings.Provider,
		Dims:      c.Embeddings.Dims,
		Model:     c.Embeddings.Model,
		BaseURL:   c.Embeddings.BaseURL,
		APIKey:    c.Embeddings.APIKey,
		Timeout:   c.Embeddings.Timeout,
		AdaptMode: c.Embeddings.AdaptMode,
	}
}

// LLMOptions maps to the generator options. The base URL and key follow
// the selected provider.
func (c *Config) LLMOptions() llm.Options {
	opts := llm.Options{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		Timeout:  c.LLM.Timeout,
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "ollama":
		opts.BaseURL = c.LLM.OllamaHost
	case "openrouter":
		opts.APIKey = c.LLM.OpenRouterAPIKey
	}
	return opts
}

// NewLogger builds a production logger in production and a development
// logger otherwise, at the configured level.
func NewLogger(c *Config) (*zap.Logger, error) {
	var zc zap.Config
	if c.Environment == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// stdout carries the MCP stdio protocol.
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
