package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "file:./knowledge.db", cfg.Database.URL)
	assert.Equal(t, 256, cfg.Embeddings.Dims)
	assert.Equal(t, "libsql", cfg.Embeddings.VectorBackend)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.995, cfg.Graph.DecayFactor, 1e-9)

	opts, err := cfg.GraphOptions()
	require.NoError(t, err)
	assert.Equal(t, 5, opts.PromotionThreshold)
	assert.Equal(t, 3, opts.QueryPromotionMin)
	assert.Equal(t, 120, opts.Delays.EmbeddingSearch)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LIBSQL_URL", "libsql://example.turso.io")
	t.Setenv("EMBEDDING_DIMS", "768")
	t.Setenv("KG_PROMOTION_THRESHOLD", "8")
	t.Setenv("KG_LLM_PROVIDER", "openrouter")
	t.Setenv("OPENROUTER_API_KEY", "sk-or")
	t.Setenv("KG_TRANSPORT", "sse")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "libsql://example.turso.io", cfg.DatabaseConfig().URL)
	assert.Equal(t, 768, cfg.DatabaseConfig().EmbeddingDims)
	assert.Equal(t, 768, cfg.EmbeddingsOptions().Dims)
	assert.Equal(t, "sk-or", cfg.LLMOptions().APIKey)
	assert.Empty(t, cfg.LLMOptions().BaseURL)

	opts, err := cfg.GraphOptions()
	require.NoError(t, err)
	assert.Equal(t, 8, opts.PromotionThreshold)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("KG_ENVIRONMENT=production\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("KG_ENVIRONMENT") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("KG_VECTOR_BACKEND", "faiss")
	_, err := Load("")
	assert.ErrorContains(t, err, "KG_VECTOR_BACKEND")

	t.Setenv("KG_VECTOR_BACKEND", "memory")
	t.Setenv("EMBEDDING_DIMS", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "EMBEDDING_DIMS")

	t.Setenv("EMBEDDING_DIMS", "not-a-number")
	_, err = Load("")
	assert.Error(t, err)
}

func TestGraphOptions_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "kgraph.yaml")
	doc := `
graph:
  promotion_threshold: 2
  similarity_threshold: 0.55
  delays:
    llm_thinking: 0
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	opts, err := cfg.GraphOptions()
	require.NoError(t, err)
	assert.Equal(t, 2, opts.PromotionThreshold)
	assert.InDelta(t, 0.55, opts.SimilarityThreshold, 1e-9)
	assert.Equal(t, 0, opts.Delays.LLMThinking)
	// Keys absent from the file keep their environment values.
	assert.Equal(t, 3, opts.QueryPromotionMin)
	assert.Equal(t, 100, opts.Delays.EdgeExpansion)
}

func TestGraphOptions_BadYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph: [unterminated"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	_, err = cfg.GraphOptions()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(&Config{Environment: "production", LogLevel: "warn"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(-1))

	_, err = NewLogger(&Config{LogLevel: "chatty"})
	assert.Error(t, err)
}
