package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("LIBSQL_URL", "file:"+filepath.Join(dir, "kg.db"))
	t.Setenv("EMBEDDING_DIMS", "32")
	t.Setenv("KG_LLM_PROVIDER", "none")
	t.Setenv("KG_LOG_LEVEL", "error")
	return dir
}

func TestDecodeNotes(t *testing.T) {
	list, err := decodeNotes([]byte("- title: A\n  content: alpha\n- content: beta\n  tags: [x]\n"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Title)
	assert.Equal(t, []string{"x"}, list[1].Tags)

	wrapped, err := decodeNotes([]byte(`{"notes": [{"content": "gamma"}]}`))
	require.NoError(t, err)
	require.Len(t, wrapped, 1)
	assert.Equal(t, "gamma", wrapped[0].Content)

	_, err = decodeNotes([]byte("notes: [unterminated"))
	assert.Error(t, err)
}

func TestVersionSkipsConfig(t *testing.T) {
	t.Setenv("KG_VECTOR_BACKEND", "invalid")
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kgraph")
}

func TestIngestQueryStateFlow(t *testing.T) {
	dir := testEnv(t)

	out, err := run(t, "ingest", "--title", "Kickoff", "--content", "Alice Smith kicked off Project Atlas.")
	require.NoError(t, err)
	assert.Contains(t, out, `"Kickoff"`)
	assert.Contains(t, out, "1/1 notes ingested")

	batch := filepath.Join(dir, "notes.yaml")
	require.NoError(t, os.WriteFile(batch, []byte("notes:\n  - content: Bob Jones joined Project Atlas.\n  - content: Alice Smith met Bob Jones.\n"), 0o600))
	out, err = run(t, "ingest", batch)
	require.NoError(t, err)
	assert.Contains(t, out, "2/2 notes ingested")

	out, err = run(t, "-o", "json", "query", "Who", "works", "on", "Project", "Atlas?")
	require.NoError(t, err)
	var res apptype.QueryResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.Nodes)
	assert.False(t, res.UsedGeneration)

	out, err = run(t, "-o", "json", "state")
	require.NoError(t, err)
	var st apptype.GraphState
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.EqualValues(t, 1, st.TotalQueries)
	assert.Greater(t, st.NodeCount, 3)

	out, err = run(t, "adaptations", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, apptype.EventNoteAdded)
}

func TestIngestRequiresInput(t *testing.T) {
	testEnv(t)
	_, err := run(t, "ingest")
	assert.ErrorContains(t, err, "--content")
}

func TestTypesDefineAndList(t *testing.T) {
	testEnv(t)
	out, err := run(t, "types", "define", "Recipe")
	require.NoError(t, err)
	assert.Contains(t, out, "created recipe")

	out, err = run(t, "types", "define", "recipe")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = run(t, "types")
	require.NoError(t, err)
	assert.Contains(t, out, "recipe")
	assert.Contains(t, out, "person")
}

func TestClearRequiresYes(t *testing.T) {
	testEnv(t)
	_, err := run(t, "clear")
	assert.ErrorContains(t, err, "--yes")

	out, err := run(t, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "graph cleared")
}

func TestUnknownOutputFormat(t *testing.T) {
	testEnv(t)
	_, err := run(t, "-o", "xml", "state")
	assert.ErrorContains(t, err, "unknown output format")
}
