package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/embeddings"
)

func setupTestDB(t *testing.T) (*DBManager, func()) {
	config := NewConfig()
	// Each test gets its own shared-cache in-memory database.
	config.URL = "file:testdb-" + uuid.NewString() + "?mode=memory&cache=shared"
	config.EmbeddingDims = 32
	db, err := NewDBManager(config)
	require.NoError(t, err)

	cleanup := func() {
		err := db.Close()
		assert.NoError(t, err)
	}
	return db, cleanup
}

func mustNode(t *testing.T, db *DBManager, name string, typ apptype.TypeName) apptype.Node {
	t.Helper()
	n, err := db.CreateNode(context.Background(), apptype.Node{Name: name, EntityType: typ})
	require.NoError(t, err)
	return n
}

func mustEdge(t *testing.T, db *DBManager, a, b apptype.Node, rel string, w float64) apptype.Edge {
	t.Helper()
	e, err := db.CreateEdge(context.Background(), apptype.Edge{SourceID: a.ID, TargetID: b.ID, RelationType: rel, Weight: w})
	require.NoError(t, err)
	return e
}

func TestSeedSchemaTypes(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	types, err := db.ListSchemaTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, len(apptype.SeedTypes))
	for _, st := range types {
		assert.True(t, st.IsSeed)
		assert.Zero(t, st.Count)
	}
}

func TestCreateAndGetNode(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	n, err := db.CreateNode(ctx, apptype.Node{
		Name:       "Alice Smith",
		EntityType: apptype.TypePerson,
		Metadata:   map[string]any{"label": "person"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)

	got, err := db.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", got.Name)
	assert.Equal(t, apptype.TypePerson, got.EntityType)
	assert.Equal(t, "person", got.Metadata["label"])
	assert.False(t, got.IsTombstone())

	counts, err := db.CountNodesByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[apptype.TypePerson])

	types, err := db.ListSchemaTypes(ctx)
	require.NoError(t, err)
	for _, st := range types {
		if st.Name == apptype.TypePerson {
			assert.Equal(t, 1, st.Count)
		}
	}

	_, err = db.GetNode(ctx, "missing")
	assert.True(t, errors.Is(err, apptype.ErrNotFound))
}

func TestCreateNode_Validation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := db.CreateNode(context.Background(), apptype.Node{Name: " ", EntityType: apptype.TypeThing})
	assert.Error(t, err)
	_, err = db.CreateNode(context.Background(), apptype.Node{Name: "x", EntityType: "bad type"})
	assert.Error(t, err)
}

func TestFindNodeByName_CaseInsensitive(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	person := mustNode(t, db, "Ada Lovelace", apptype.TypePerson)
	mustNode(t, db, "ada lovelace", apptype.TypeNote)

	got, err := db.FindNodeByName(ctx, "  ADA   lovelace ", "")
	require.NoError(t, err)
	assert.Equal(t, person.ID, got.ID)

	got, err = db.FindNodeByName(ctx, "ada lovelace", apptype.TypeNote)
	require.NoError(t, err)
	assert.Equal(t, apptype.TypeNote, got.EntityType)

	got, err = db.FindEntityByName(ctx, "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, person.ID, got.ID)

	_, err = db.FindNodeByName(ctx, "nobody", "")
	assert.True(t, errors.Is(err, apptype.ErrNotFound))
}

func TestTouchNode_Concurrent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	n := mustNode(t, db, "Atlas", apptype.TypeThing)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.TouchNode(context.Background(), n.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := db.GetNode(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.AccessCount)

	_, err = db.TouchNode(context.Background(), "missing")
	assert.True(t, errors.Is(err, apptype.ErrNotFound))
}

func TestTouchNode_StampsUpdatedAt(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	n := mustNode(t, db, "Atlas", apptype.TypeThing)

	time.Sleep(5 * time.Millisecond)
	count, err := db.TouchNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := db.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.After(n.CreatedAt), "updated_at %v not after created_at %v", got.UpdatedAt, n.CreatedAt)
	assert.WithinDuration(t, n.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestEdgeWeightsAreClamped(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	a := mustNode(t, db, "a", apptype.TypeThing)
	b := mustNode(t, db, "b", apptype.TypeThing)

	low := mustEdge(t, db, a, b, "rel", 0)
	assert.Equal(t, apptype.MinEdgeWeight, low.Weight)
	high := mustEdge(t, db, a, b, "rel2", 50)
	assert.Equal(t, apptype.MaxEdgeWeight, high.Weight)

	w, err := db.BoostEdge(ctx, high.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, apptype.MaxEdgeWeight, w)

	w, err = db.BoostEdge(ctx, low.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, apptype.MinEdgeWeight, w)

	got, err := db.GetEdge(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TraversalCount)
	assert.NotNil(t, got.LastTraversed)

	require.NoError(t, db.SetEdgeWeight(ctx, low.ID, 0.01))
	got, err = db.GetEdge(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, apptype.MinEdgeWeight, got.Weight)

	assert.True(t, errors.Is(db.SetEdgeWeight(ctx, "missing", 1), apptype.ErrNotFound))
	_, err = db.BoostEdge(ctx, "missing", 1)
	assert.True(t, errors.Is(err, apptype.ErrNotFound))
}

func TestDecayEdges(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	a := mustNode(t, db, "a", apptype.TypeThing)
	b := mustNode(t, db, "b", apptype.TypeThing)
	e := mustEdge(t, db, a, b, "rel", 5.0)

	n, err := db.DecayEdges(ctx, 0.995)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := db.GetEdge(ctx, e.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.975, got.Weight, 1e-9)

	for i := 0; i < 2000; i++ {
		_, err = db.DecayEdges(ctx, 0.5)
		require.NoError(t, err)
	}
	got, err = db.GetEdge(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, apptype.MinEdgeWeight, got.Weight)

	_, err = db.DecayEdges(ctx, 0)
	assert.Error(t, err)
}

func TestFindEdge_EitherDirection(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	a := mustNode(t, db, "a", apptype.TypeThing)
	b := mustNode(t, db, "b", apptype.TypeThing)
	e := mustEdge(t, db, a, b, apptype.RelCoOccurs, 1)

	got, err := db.FindEdge(ctx, b.ID, a.ID, apptype.RelCoOccurs)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	got, err = db.FindEdge(ctx, a.ID, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	_, err = db.FindEdge(ctx, a.ID, b.ID, apptype.RelMentions)
	assert.True(t, errors.Is(err, apptype.ErrNotFound))

	edges, err := db.GetEdgesForNode(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
	assert.Equal(t, a.ID, edges[0].Other(b.ID))
}

func TestRegisterSchemaType_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	created, err := db.RegisterSchemaType(ctx, "project", "thing")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = db.RegisterSchemaType(ctx, "project", "thing")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = db.RegisterSchemaType(ctx, apptype.TypePerson, "")
	require.NoError(t, err)
	assert.False(t, created)

	ok, err := db.HasSchemaType(ctx, "project")
	require.NoError(t, err)
	assert.True(t, ok)

	types, err := db.ListSchemaTypes(ctx)
	require.NoError(t, err)
	last := types[len(types)-1]
	assert.Equal(t, apptype.TypeName("project"), last.Name)
	assert.False(t, last.IsSeed)
	assert.Equal(t, "thing", last.EvolvedFrom)
}

func TestAdaptationLog(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i, kind := range []string{apptype.EventNoteAdded, apptype.EventTypeCreated, apptype.EventTypePromoted} {
		ev, err := db.LogAdaptation(ctx, kind, kind, map[string]any{"i": float64(i)})
		require.NoError(t, err)
		assert.NotZero(t, ev.ID)
	}
	events, err := db.RecentAdaptations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, apptype.EventTypePromoted, events[0].EventType)
	assert.Equal(t, float64(2), events[0].Details["i"])
	assert.Equal(t, apptype.EventTypeCreated, events[1].EventType)
}

func TestQueryMetrics(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	m, err := db.GetMetrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.AvgLatencyMs)

	require.NoError(t, db.RecordQuery(ctx, 10, false))
	require.NoError(t, db.RecordQuery(ctx, 30, true))
	m, err = db.GetMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.TotalQueries)
	assert.Equal(t, int64(1), m.LLMCalls)
	assert.InDelta(t, 20.0, m.AvgLatencyMs, 1e-9)
}

func TestAbsorbNode(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	keep := mustNode(t, db, "Bob", apptype.TypePerson)
	dup := mustNode(t, db, "Robert", apptype.TypePerson)
	note := mustNode(t, db, "note", apptype.TypeNote)
	mustEdge(t, db, note, dup, apptype.RelMentions, 1)
	mustEdge(t, db, dup, keep, apptype.RelCoOccurs, 1)

	moved, err := db.AbsorbNode(ctx, keep.ID, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	tomb, err := db.GetNode(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, keep.ID, tomb.MergedInto)

	_, err = db.FindNodeByName(ctx, "Robert", "")
	assert.True(t, errors.Is(err, apptype.ErrNotFound))

	_, err = db.FindEdge(ctx, note.ID, keep.ID, apptype.RelMentions)
	assert.NoError(t, err)

	edges, err := db.GetAllEdges(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
	for _, e := range edges {
		assert.NotEqual(t, e.SourceID, e.TargetID)
	}

	nodes, err := db.CountNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, nodes)

	moved, err = db.AbsorbNode(ctx, keep.ID, dup.ID)
	require.NoError(t, err)
	assert.Zero(t, moved)

	_, err = db.AbsorbNode(ctx, keep.ID, "missing")
	assert.True(t, errors.Is(err, apptype.ErrNotFound))
	_, err = db.AbsorbNode(ctx, keep.ID, keep.ID)
	assert.Error(t, err)
}

func TestClearAll(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	a := mustNode(t, db, "a", apptype.TypePerson)
	b := mustNode(t, db, "b", apptype.TypePerson)
	mustEdge(t, db, a, b, "rel", 1)
	_, err := db.RegisterSchemaType(ctx, "project", "")
	require.NoError(t, err)
	_, err = db.LogAdaptation(ctx, apptype.EventNoteAdded, "x", nil)
	require.NoError(t, err)
	require.NoError(t, db.RecordQuery(ctx, 5, true))

	require.NoError(t, db.ClearAll(ctx))

	nodes, err := db.CountNodes(ctx)
	require.NoError(t, err)
	assert.Zero(t, nodes)
	edges, err := db.CountEdges(ctx)
	require.NoError(t, err)
	assert.Zero(t, edges)
	types, err := db.ListSchemaTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, len(apptype.SeedTypes))
	for _, st := range types {
		assert.Zero(t, st.Count)
	}
	events, err := db.RecentAdaptations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	m, err := db.GetMetrics(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.TotalQueries)
}

func TestVectorIndex(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	idx := NewVectorIndex(db, embeddings.NewHash(32))

	require.NoError(t, idx.Add(ctx, "n1", "graph database indexing"))
	require.NoError(t, idx.Add(ctx, "n2", "graph database indexes"))
	require.NoError(t, idx.Add(ctx, "n3", "banana smoothie recipe"))
	require.NoError(t, idx.Add(ctx, "n4", "   "))

	n, err := idx.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := idx.Search(ctx, "graph database indexing", 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "n1", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)

	similar, err := idx.SimilarTo(ctx, "n1", 5)
	require.NoError(t, err)
	require.NotEmpty(t, similar)
	assert.Equal(t, "n2", similar[0].ID)
	for _, h := range similar {
		assert.NotEqual(t, "n1", h.ID)
	}

	s12, err := idx.Similarity(ctx, "n1", "n2")
	require.NoError(t, err)
	s13, err := idx.Similarity(ctx, "n1", "n3")
	require.NoError(t, err)
	assert.Greater(t, s12, s13)

	s, err := idx.Similarity(ctx, "n1", "missing")
	require.NoError(t, err)
	assert.Zero(t, s)

	require.NoError(t, idx.Delete(ctx, "n2"))
	require.NoError(t, idx.Clear(ctx))
	n, err = idx.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConnectionURL(t *testing.T) {
	assert.Equal(t, "file:x.db", connectionURL(&Config{URL: "file:x.db", AuthToken: "tok"}))
	assert.Equal(t, "libsql://db.example.io?authToken=tok",
		connectionURL(&Config{URL: "libsql://db.example.io", AuthToken: "tok"}))
}
