package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
)

// ItemError records one failed note of a batch.
type ItemError struct {
	Index int    `json:"index"`
	Title string `json:"title,omitempty"`
	Error string `json:"error"`
}

// IngestReport summarizes a batch import. Err joins every item error.
type IngestReport struct {
	Total     int                    `json:"total"`
	Succeeded []apptype.IngestResult `json:"succeeded"`
	Failed    []ItemError            `json:"failed,omitempty"`
	Err       error                  `json:"-"`
}

// IngestBatch ingests notes with bounded concurrency. A failing note is
// logged and reported without aborting the rest; only ctx cancellation
// stops the batch early.
func (e *Engine) IngestBatch(ctx context.Context, notes []apptype.NoteInput) IngestReport {
	report := IngestReport{Total: len(notes)}
	e.bus.Publish(events.KindImportStatus, map[string]any{"status": "started", "total": len(notes)})

	results := make([]*apptype.IngestResult, len(notes))
	var (
		mu   sync.Mutex
		errs []error
		done atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ImportConcurrency)
	for i := range notes {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				mu.Lock()
				report.Failed = append(report.Failed, ItemError{Index: i, Title: notes[i].Title, Error: err.Error()})
				errs = append(errs, fmt.Errorf("note %d: %w", i, err))
				mu.Unlock()
				return nil
			}
			res, err := e.AddNote(gctx, notes[i])
			n := done.Add(1)
			progress := map[string]any{"index": i, "done": n, "total": len(notes)}
			if err != nil {
				e.log.Warn("import item failed", zap.Int("index", i), zap.String("title", notes[i].Title), zap.Error(err))
				mu.Lock()
				report.Failed = append(report.Failed, ItemError{Index: i, Title: notes[i].Title, Error: err.Error()})
				errs = append(errs, fmt.Errorf("note %d: %w", i, err))
				mu.Unlock()
				progress["error"] = err.Error()
			} else {
				results[i] = &res
				progress["note_id"] = res.Note.ID
			}
			e.bus.Publish(events.KindImportProgress, progress)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r != nil {
			report.Succeeded = append(report.Succeeded, *r)
		}
	}
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Index < report.Failed[j].Index })
	report.Err = errors.Join(errs...)
	e.bus.Publish(events.KindImportStatus, map[string]any{
		"status":    "completed",
		"total":     len(notes),
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
	})
	return report
}
