package database

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

// RegisterSchemaType adds name to the schema registry with a zero count.
// created is false when the type was already registered.
func (dm *DBManager) RegisterSchemaType(ctx context.Context, name apptype.TypeName, evolvedFrom string) (bool, error) {
	if err := name.Validate(); err != nil {
		return false, err
	}
	res, err := dm.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_types (name, count, is_seed, evolved_from, created_at) VALUES (?, 0, 0, ?, ?)",
		string(name), nullString(evolvedFrom), formatTime(now()))
	if err != nil {
		return false, fmt.Errorf("failed to register schema type %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for schema type %q: %w", name, err)
	}
	return n == 1, nil
}

// ListSchemaTypes returns the registry, seeds first.
func (dm *DBManager) ListSchemaTypes(ctx context.Context) ([]apptype.SchemaType, error) {
	rows, err := dm.db.QueryContext(ctx,
		"SELECT name, count, is_seed, evolved_from, created_at FROM schema_types ORDER BY is_seed DESC, created_at, name")
	if err != nil {
		return nil, fmt.Errorf("failed to list schema types: %w", err)
	}
	defer rows.Close()
	var out []apptype.SchemaType
	for rows.Next() {
		var (
			st      apptype.SchemaType
			name    string
			count   int64
			isSeed  int64
			evolved *string
			created string
		)
		if err := rows.Scan(&name, &count, &isSeed, &evolved, &created); err != nil {
			return nil, fmt.Errorf("failed to scan schema type: %w", err)
		}
		st.Name = apptype.TypeName(name)
		st.Count = int(count)
		st.IsSeed = isSeed != 0
		if evolved != nil {
			st.EvolvedFrom = *evolved
		}
		st.CreatedAt = parseTime(created)
		out = append(out, st)
	}
	return out, rows.Err()
}

// HasSchemaType reports whether name is registered.
func (dm *DBManager) HasSchemaType(ctx context.Context, name apptype.TypeName) (bool, error) {
	var n int64
	if err := dm.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_types WHERE name = ?", string(name)).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up schema type %q: %w", name, err)
	}
	return n > 0, nil
}

// LogAdaptation appends an event to the adaptation log.
func (dm *DBManager) LogAdaptation(ctx context.Context, eventType, description string, details map[string]any) (apptype.AdaptationEvent, error) {
	meta, err := encodeMetadata(details)
	if err != nil {
		return apptype.AdaptationEvent{}, err
	}
	ev := apptype.AdaptationEvent{EventType: eventType, Description: description, Timestamp: now(), Details: details}
	res, err := dm.db.ExecContext(ctx,
		"INSERT INTO adaptation_events (event_type, description, timestamp, details) VALUES (?, ?, ?, ?)",
		eventType, description, formatTime(ev.Timestamp), meta)
	if err != nil {
		return apptype.AdaptationEvent{}, fmt.Errorf("failed to log adaptation %q: %w", eventType, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		ev.ID = id
	}
	return ev, nil
}

// RecentAdaptations returns up to limit events, newest first.
func (dm *DBManager) RecentAdaptations(ctx context.Context, limit int) ([]apptype.AdaptationEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := dm.db.QueryContext(ctx,
		"SELECT id, event_type, description, timestamp, details FROM adaptation_events ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read adaptations: %w", err)
	}
	defer rows.Close()
	var out []apptype.AdaptationEvent
	for rows.Next() {
		var ev apptype.AdaptationEvent
		var ts, details string
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Description, &ts, &details); err != nil {
			return nil, fmt.Errorf("failed to scan adaptation: %w", err)
		}
		ev.Timestamp = parseTime(ts)
		ev.Details = decodeMetadata(details)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecordQuery folds one query into the aggregate metrics row.
func (dm *DBManager) RecordQuery(ctx context.Context, latencyMs float64, usedGeneration bool) error {
	done := metrics.TimeOp("db_record_query")
	success := false
	defer func() { done(success) }()
	llm := 0
	if usedGeneration {
		llm = 1
	}
	if _, err := dm.db.ExecContext(ctx,
		`UPDATE query_metrics SET total_queries = total_queries + 1,
		 llm_calls = llm_calls + ?, total_latency_ms = total_latency_ms + ? WHERE id = 1`,
		llm, latencyMs); err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}
	success = true
	return nil
}

// GetMetrics returns the aggregate query metrics.
func (dm *DBManager) GetMetrics(ctx context.Context) (apptype.Metrics, error) {
	var m apptype.Metrics
	err := dm.db.QueryRowContext(ctx,
		"SELECT total_queries, llm_calls, total_latency_ms FROM query_metrics WHERE id = 1").
		Scan(&m.TotalQueries, &m.LLMCalls, &m.TotalLatencyMs)
	if err != nil {
		return apptype.Metrics{}, fmt.Errorf("failed to read metrics: %w", err)
	}
	if m.TotalQueries > 0 {
		m.AvgLatencyMs = m.TotalLatencyMs / float64(m.TotalQueries)
	}
	return m, nil
}
