package database

// Config holds the database configuration
type Config struct {
	URL           string
	AuthToken     string
	EmbeddingDims int
	// Pool tuning; MaxOpenConns defaults to 1 so every write is serialized
	// through a single libSQL connection.
	MaxOpenConns   int
	MaxIdleConns   int
	ConnMaxIdleSec int
	ConnMaxLifeSec int
}

// NewConfig returns a Config for a local file database with defaults.
func NewConfig() *Config {
	return &Config{
		URL:           "file:./knowledge.db",
		EmbeddingDims: 256,
		MaxOpenConns:  1,
	}
}
