package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/events"
)

// HeartbeatInterval is how often idle feed connections receive a comment.
const HeartbeatInterval = 30 * time.Second

// sseWriter writes Server-Sent Events and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) start() {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.Header().Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	s.flush()
}

func (s *sseWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// writeEvent writes "event: name\ndata: json\n\n".
func (s *sseWriter) writeEvent(name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal SSE data: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *sseWriter) writeComment(comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", comment); err != nil {
		return err
	}
	s.flush()
	return nil
}

// EventFeed streams every broadcast engine event to HTTP clients as SSE.
// Each connection gets its own unbounded queue so a slow reader never
// stalls the engine.
type EventFeed struct {
	bus *events.Broadcaster
	log *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEventFeed creates a feed over bus.
func NewEventFeed(bus *events.Broadcaster, log *zap.Logger) *EventFeed {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventFeed{bus: bus, log: log.Named("feed"), ctx: ctx, cancel: cancel}
}

// Stop ends every open connection.
func (f *EventFeed) Stop() { f.cancel() }

// ServeHTTP handles GET /events.
func (f *EventFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	connID := uuid.NewString()
	queue := events.NewStream()
	unsubscribe := f.bus.Subscribe("sse:"+connID, func(ev events.Event) error {
		queue.Emit(ev)
		return nil
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-f.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	sw := newSSEWriter(w)
	sw.start()
	if err := sw.writeEvent("connected", map[string]any{"connectionId": connID}); err != nil {
		return
	}
	f.log.Debug("feed client connected", zap.String("connection_id", connID))

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				if err := sw.writeComment("heartbeat"); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		ev, ok := queue.Next(ctx)
		if !ok {
			break
		}
		if err := sw.writeEvent(string(ev.Type), ev); err != nil {
			f.log.Debug("feed write failed", zap.String("connection_id", connID), zap.Error(err))
			break
		}
	}
	cancel()
	wg.Wait()
	f.log.Debug("feed client disconnected", zap.String("connection_id", connID))
}
