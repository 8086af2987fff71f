package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

// NewDBManager opens the database, applies the schema, and seeds the
// bootstrap schema types.
func NewDBManager(config *Config) (*DBManager, error) {
	if config.EmbeddingDims <= 0 || config.EmbeddingDims > 65536 {
		return nil, fmt.Errorf("embedding dims must be between 1 and 65536 inclusive, got %d", config.EmbeddingDims)
	}

	db, err := sql.Open("libsql", connectionURL(config))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connector: %w", err)
	}

	// Apply connection pool tuning from config
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxIdleSec > 0 {
		db.SetConnMaxIdleTime(time.Duration(config.ConnMaxIdleSec) * time.Second)
	}
	if config.ConnMaxLifeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifeSec) * time.Second)
	}

	// An existing store keeps the vector width it was created with.
	if dims := detectDBEmbeddingDims(db); dims > 0 && dims != config.EmbeddingDims {
		config.EmbeddingDims = dims
	}

	dm := &DBManager{
		config:    config,
		db:        db,
		stmtCache: make(map[string]*sql.Stmt),
	}
	if err := dm.initialize(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	dm.detectCapabilities(context.Background())

	stats := db.Stats()
	metrics.Default().ObservePoolStats(stats.InUse, stats.Idle)
	return dm, nil
}

// connectionURL appends the auth token to remote URLs.
func connectionURL(config *Config) string {
	dbURL := config.URL
	if strings.HasPrefix(dbURL, "file:") || config.AuthToken == "" {
		return dbURL
	}
	if u, err := url.Parse(dbURL); err == nil {
		q := u.Query()
		q.Set("authToken", config.AuthToken)
		u.RawQuery = q.Encode()
		return u.String()
	}
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + "authToken=" + url.QueryEscape(config.AuthToken)
}

// detectDBEmbeddingDims parses F32_BLOB(n) from an existing node_vectors table.
func detectDBEmbeddingDims(db *sql.DB) int {
	var sqlText string
	_ = db.QueryRow("SELECT sql FROM sqlite_master WHERE type='table' AND name='node_vectors'").Scan(&sqlText)
	low := strings.ToLower(sqlText)
	idx := strings.Index(low, "f32_blob(")
	if idx < 0 {
		return 0
	}
	rest := low[idx+len("f32_blob("):]
	end := strings.Index(rest, ")")
	if end <= 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest[:end]))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// initialize creates tables and indexes and seeds the schema registry.
func (dm *DBManager) initialize(ctx context.Context) error {
	done := metrics.TimeOp("db_initialize")
	success := false
	defer func() { done(success) }()

	err := dm.withTx(ctx, func(tx *sql.Tx) error {
		for _, statement := range dynamicSchema(dm.config.EmbeddingDims) {
			if _, err := tx.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("failed to execute schema statement: %w", err)
			}
		}
		return seedSchemaTypes(ctx, tx)
	})
	if err != nil {
		return err
	}
	success = true
	return nil
}

func seedSchemaTypes(ctx context.Context, tx *sql.Tx) error {
	ts := formatTime(now())
	for _, t := range apptype.SeedTypes {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO schema_types (name, count, is_seed, created_at) VALUES (?, 0, 1, ?)",
			string(t), ts); err != nil {
			return fmt.Errorf("failed to seed schema type %q: %w", t, err)
		}
	}
	return nil
}
