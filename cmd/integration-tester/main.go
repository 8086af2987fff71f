package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
)

type StepResult struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type Report struct {
	SSEURL     string       `json:"sse_url"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMs int64        `json:"duration_ms"`
	Steps      []StepResult `json:"steps"`
	Passed     bool         `json:"passed"`
}

func main() {
	sseURL := flag.String("sse-url", "http://localhost:8080/sse", "SSE endpoint URL")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall timeout")
	destructive := flag.Bool("destructive", false, "Also run clear_graph at the end")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	report := Report{SSEURL: *sseURL, StartedAt: start}

	client := mcp.NewClient(&mcp.Implementation{Name: "integration-tester", Version: "dev"}, nil)
	var session *mcp.ClientSession
	report.Steps = append(report.Steps, step("connect", func() error {
		var err error
		session, err = client.Connect(ctx, mcp.NewSSEClientTransport(*sseURL, nil))
		return err
	}))
	if session == nil {
		finish(&report, start)
	}
	defer session.Close()

	r := &runner{ctx: ctx, session: session}
	report.Steps = append(report.Steps,
		step("list_tools", r.listTools),
		step("add_note", r.addNotes),
		step("import_notes", r.importNotes),
		step("query", r.query),
		step("graph_state", func() error { return r.call("graph_state", apptype.GraphStateArgs{}, nil) }),
		step("schema_types", func() error { return r.call("schema_types", apptype.SchemaTypesArgs{}, nil) }),
		step("define_type", func() error {
			return r.call("define_type", apptype.DefineTypeArgs{Name: "smoke_test_type"}, nil)
		}),
		step("read_graph", r.readGraph),
		step("confirm_edge", r.confirmEdge),
		step("reject_edge", r.rejectEdge),
		step("merge_entities", r.mergeEntities),
		step("recent_adaptations", func() error {
			return r.call("recent_adaptations", apptype.RecentAdaptationsArgs{Limit: 5}, nil)
		}),
		step("health_check", func() error { return r.call("health_check", apptype.HealthArgs{}, nil) }),
	)
	if *destructive {
		report.Steps = append(report.Steps, step("clear_graph", func() error {
			return r.call("clear_graph", apptype.ClearGraphArgs{Confirm: true}, nil)
		}))
	}
	finish(&report, start)
}

func finish(report *Report, start time.Time) {
	report.DurationMs = elapsedMsSince(start)
	report.Passed = len(report.Steps) > 0
	for _, s := range report.Steps {
		if !s.Success {
			report.Passed = false
			break
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if !report.Passed {
		os.Exit(1)
	}
	os.Exit(0)
}

func step(name string, fn func() error) StepResult {
	t0 := time.Now()
	res := StepResult{Name: name, Success: true}
	if err := fn(); err != nil {
		res.Success = false
		res.Error = err.Error()
	}
	res.ElapsedMs = elapsedMsSince(t0)
	return res
}

// runner carries state discovered by earlier steps into later ones.
type runner struct {
	ctx     context.Context
	session *mcp.ClientSession
	graph   apptype.GraphResult
}

// call invokes a tool and decodes its structured content into out when
// out is non-nil. Tool-level errors are reported as step failures.
func (r *runner) call(tool string, args any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	res, err := r.session.CallTool(r.ctx, &mcp.CallToolParams{Name: tool, Arguments: json.RawMessage(raw)})
	if err != nil {
		return err
	}
	if res.IsError {
		msg := "tool error"
		if len(res.Content) > 0 {
			if tc, ok := res.Content[0].(*mcp.TextContent); ok {
				msg = tc.Text
			}
		}
		return errors.New(msg)
	}
	if out == nil {
		return nil
	}
	sc, err := json.Marshal(res.StructuredContent)
	if err != nil {
		return err
	}
	return json.Unmarshal(sc, out)
}

func (r *runner) listTools() error {
	tools, err := r.session.ListTools(r.ctx, &mcp.ListToolsParams{})
	if err != nil {
		return err
	}
	if len(tools.Tools) == 0 {
		return errors.New("server exposes no tools")
	}
	return nil
}

func (r *runner) addNotes() error {
	notes := []apptype.AddNoteArgs{
		{Title: "Smoke kickoff", Content: "Ada Lovelace kicked off the Analytical Engine review."},
		{Title: "Smoke follow-up", Content: "Charles Babbage and Ada Lovelace discussed the Analytical Engine."},
	}
	for _, n := range notes {
		var res apptype.IngestResult
		if err := r.call("add_note", n, &res); err != nil {
			return err
		}
		if res.Note.ID == "" {
			return fmt.Errorf("add_note %q returned no note id", n.Title)
		}
	}
	return nil
}

func (r *runner) importNotes() error {
	var res apptype.ImportNotesResult
	err := r.call("import_notes", apptype.ImportNotesArgs{Notes: []apptype.AddNoteArgs{
		{Content: "Charles Babbage designed the Difference Engine."},
		{Content: "Ada Lovelace wrote notes on the Analytical Engine."},
	}}, &res)
	if err != nil {
		return err
	}
	if res.Succeeded != 2 {
		return fmt.Errorf("import_notes: %d of %d succeeded", res.Succeeded, res.Total)
	}
	return nil
}

func (r *runner) query() error {
	var res apptype.QueryToolResult
	if err := r.call("query", apptype.QueryArgs{Query: "Who worked on the Analytical Engine?", IncludeTrace: true}, &res); err != nil {
		return err
	}
	if len(res.Trace) == 0 || res.Trace[len(res.Trace)-1].Phase != "complete" {
		return errors.New("query trace did not end with the complete phase")
	}
	return nil
}

func (r *runner) readGraph() error {
	if err := r.call("read_graph", apptype.ReadGraphArgs{}, &r.graph); err != nil {
		return err
	}
	if len(r.graph.Nodes) == 0 || len(r.graph.Edges) == 0 {
		return fmt.Errorf("read_graph returned %d nodes and %d edges", len(r.graph.Nodes), len(r.graph.Edges))
	}
	return nil
}

func (r *runner) confirmEdge() error {
	if len(r.graph.Edges) == 0 {
		return errors.New("no edge available")
	}
	return r.call("confirm_edge", apptype.EdgeFeedbackArgs{EdgeID: r.graph.Edges[0].ID}, nil)
}

func (r *runner) rejectEdge() error {
	if len(r.graph.Edges) < 2 {
		return errors.New("fewer than two edges available")
	}
	var res apptype.EdgeResult
	if err := r.call("reject_edge", apptype.EdgeFeedbackArgs{EdgeID: r.graph.Edges[1].ID}, &res); err != nil {
		return err
	}
	if res.Edge.Weight != apptype.MinEdgeWeight {
		return fmt.Errorf("rejected edge weight %v, want %v", res.Edge.Weight, apptype.MinEdgeWeight)
	}
	return nil
}

func (r *runner) mergeEntities() error {
	var ids []string
	for _, n := range r.graph.Nodes {
		if n.EntityType != apptype.TypeNote {
			ids = append(ids, n.ID)
		}
		if len(ids) == 2 {
			break
		}
	}
	if len(ids) < 2 {
		return errors.New("fewer than two entities available")
	}
	var res apptype.NodeResult
	if err := r.call("merge_entities", apptype.MergeEntitiesArgs{KeepID: ids[0], MergeIDs: ids[1:]}, &res); err != nil {
		return err
	}
	if res.Node.ID != ids[0] {
		return fmt.Errorf("merge returned %s, want %s", res.Node.ID, ids[0])
	}
	return nil
}

// elapsedMsSince returns max(1ms, elapsed) to avoid zero durations on fast steps
func elapsedMsSince(t0 time.Time) int64 {
	d := time.Since(t0) / time.Millisecond
	if d <= 0 {
		return 1
	}
	return int64(d)
}
