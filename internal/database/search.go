package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/embeddings"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

// VectorIndex stores one embedding per node in node_vectors and answers
// similarity queries with libSQL's vector functions.
type VectorIndex struct {
	dm       *DBManager
	provider embeddings.Provider
}

// NewVectorIndex binds provider to the store. The provider output is
// adapted to the store's vector width.
func NewVectorIndex(dm *DBManager, provider embeddings.Provider) *VectorIndex {
	return &VectorIndex{dm: dm, provider: embeddings.WrapToDims(provider, dm.dims(), "")}
}

// Add embeds text and stores it for id, replacing any previous vector.
// Text that embeds to the zero vector is not indexed.
func (v *VectorIndex) Add(ctx context.Context, id, text string) error {
	done := metrics.TimeOp("db_vector_add")
	success := false
	defer func() { done(success) }()

	vec, err := embeddings.EmbedOne(ctx, v.provider, text)
	if err != nil {
		return fmt.Errorf("failed to embed node %s: %w", id, err)
	}
	if isZeroVector(vec) {
		success = true
		return v.Delete(ctx, id)
	}
	lit, err := v.dm.vectorToString(vec)
	if err != nil {
		return err
	}
	if _, err := v.dm.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO node_vectors (node_id, embedding) VALUES (?, vector32(?))", id, lit); err != nil {
		return fmt.Errorf("failed to store vector for %s: %w", id, err)
	}
	success = true
	return nil
}

// Delete removes id from the index.
func (v *VectorIndex) Delete(ctx context.Context, id string) error {
	if _, err := v.dm.db.ExecContext(ctx, "DELETE FROM node_vectors WHERE node_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete vector for %s: %w", id, err)
	}
	return nil
}

// Clear removes every vector.
func (v *VectorIndex) Clear(ctx context.Context) error {
	if _, err := v.dm.db.ExecContext(ctx, "DELETE FROM node_vectors"); err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	return nil
}

// Search embeds text and returns up to k node ids by descending similarity.
func (v *VectorIndex) Search(ctx context.Context, text string, k int) ([]apptype.ScoredID, error) {
	vec, err := embeddings.EmbedOne(ctx, v.provider, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if isZeroVector(vec) {
		return nil, nil
	}
	return v.searchVector(ctx, vec, k, "")
}

// SimilarTo returns up to k nodes nearest to id's stored vector, excluding id.
func (v *VectorIndex) SimilarTo(ctx context.Context, id string, k int) ([]apptype.ScoredID, error) {
	vec, err := v.vectorFor(ctx, id)
	if err != nil || vec == nil {
		return nil, err
	}
	return v.searchVector(ctx, vec, k, id)
}

// Similarity returns the cosine similarity of two indexed nodes, or 0 when
// either is not indexed.
func (v *VectorIndex) Similarity(ctx context.Context, a, b string) (float64, error) {
	var d sql.NullFloat64
	err := v.dm.db.QueryRowContext(ctx, `SELECT vector_distance_cos(x.embedding, y.embedding)
		FROM node_vectors x, node_vectors y WHERE x.node_id = ? AND y.node_id = ?`, a, b).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to compare %s and %s: %w", a, b, err)
	}
	if !d.Valid {
		return 0, nil
	}
	return 1 - d.Float64, nil
}

// Len returns the number of indexed nodes.
func (v *VectorIndex) Len(ctx context.Context) (int, error) {
	var n int64
	if err := v.dm.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM node_vectors").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return int(n), nil
}

func (v *VectorIndex) vectorFor(ctx context.Context, id string) ([]float32, error) {
	var blob []byte
	err := v.dm.db.QueryRowContext(ctx, "SELECT embedding FROM node_vectors WHERE node_id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vector for %s: %w", id, err)
	}
	return v.dm.extractVector(blob)
}

func (v *VectorIndex) searchVector(ctx context.Context, vec []float32, k int, exclude string) ([]apptype.ScoredID, error) {
	done := metrics.TimeOp("db_vector_search")
	success := false
	defer func() { done(success) }()

	if k <= 0 {
		k = 10
	}
	lit, err := v.dm.vectorToString(vec)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if v.dm.hasVectorTopK() {
		// over-fetch by one so an excluded id does not shrink the result
		rows, err = v.dm.db.QueryContext(ctx, `WITH vt AS (
			SELECT id FROM vector_top_k('idx_node_vectors_embedding', vector32(?), ?)
		)
		SELECT nv.node_id, vector_distance_cos(nv.embedding, vector32(?)) AS distance
		FROM vt JOIN node_vectors nv ON nv.rowid = vt.id
		WHERE nv.node_id != ?
		ORDER BY distance ASC LIMIT ?`, lit, k+1, lit, exclude, k)
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "no such function: vector_top_k") {
			v.dm.disableVectorTopK()
			rows, err = nil, nil
		}
	}
	if rows == nil && err == nil {
		rows, err = v.dm.db.QueryContext(ctx, `SELECT node_id, vector_distance_cos(embedding, vector32(?)) AS distance
			FROM node_vectors WHERE node_id != ?
			ORDER BY distance ASC LIMIT ?`, lit, exclude, k)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var out []apptype.ScoredID
	for rows.Next() {
		var id string
		var distance sql.NullFloat64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if !distance.Valid {
			continue
		}
		out = append(out, apptype.ScoredID{ID: id, Score: 1 - distance.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	success = true
	return out, nil
}
