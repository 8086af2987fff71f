package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

// Promotion triggers.
const (
	TriggerIngest = "ingest"
	TriggerQuery  = "query"
)

// UsageCounter is the per-type usage tally that drives query-time
// promotion. It is safe for concurrent use.
type UsageCounter struct {
	mu     sync.Mutex
	counts map[apptype.TypeName]int
}

func NewUsageCounter() *UsageCounter {
	return &UsageCounter{counts: make(map[apptype.TypeName]int)}
}

// Add increments t by n and returns the new total.
func (c *UsageCounter) Add(t apptype.TypeName, n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[t] += n
	return c.counts[t]
}

func (c *UsageCounter) Get(t apptype.TypeName) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}

// Snapshot returns a copy of every tally.
func (c *UsageCounter) Snapshot() map[apptype.TypeName]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[apptype.TypeName]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func (c *UsageCounter) Reset() {
	c.mu.Lock()
	c.counts = make(map[apptype.TypeName]int)
	c.mu.Unlock()
}

type adaptationRecorder func(ctx context.Context, kind, description string, details map[string]any) error

// Ontology promotes ad-hoc node types to registered schema types once their
// usage crosses a threshold.
type Ontology struct {
	store     Store
	counter   *UsageCounter
	threshold int
	queryMin  int
	record    adaptationRecorder
}

// NewOntology wires an Ontology; a nil counter gets a fresh one.
func NewOntology(store Store, counter *UsageCounter, threshold, queryMin int, record adaptationRecorder) *Ontology {
	if counter == nil {
		counter = NewUsageCounter()
	}
	if record == nil {
		record = func(context.Context, string, string, map[string]any) error { return nil }
	}
	return &Ontology{store: store, counter: counter, threshold: threshold, queryMin: queryMin, record: record}
}

// Counter returns the usage tally.
func (o *Ontology) Counter() *UsageCounter { return o.counter }

// Promote registers t and logs a type_promoted event. Promoting an
// already-registered type is a no-op and reports false.
func (o *Ontology) Promote(ctx context.Context, t apptype.TypeName, count int, trigger string) (bool, error) {
	created, err := o.store.RegisterSchemaType(ctx, t, "")
	if err != nil || !created {
		return false, err
	}
	metrics.Default().IncTypePromotion(trigger)
	err = o.record(ctx, apptype.EventTypePromoted,
		fmt.Sprintf("Entity type '%s' promoted to schema type (%d entities)", t, count),
		map[string]any{"type": string(t), "count": count, "trigger": trigger})
	return true, err
}

// CheckIngest counts live nodes per type and promotes every unregistered
// type at or above the threshold.
func (o *Ontology) CheckIngest(ctx context.Context) ([]apptype.TypeName, error) {
	counts, err := o.store.CountNodesByType(ctx)
	if err != nil {
		return nil, err
	}
	registered, err := o.registered(ctx)
	if err != nil {
		return nil, err
	}
	var promoted []apptype.TypeName
	for _, t := range sortedTypes(counts) {
		if _, ok := registered[t]; ok || counts[t] < o.threshold {
			continue
		}
		ok, err := o.Promote(ctx, t, counts[t], TriggerIngest)
		if err != nil {
			return promoted, err
		}
		if ok {
			promoted = append(promoted, t)
		}
	}
	return promoted, nil
}

// CheckQuery folds the types of a query's accessed nodes into the usage
// tally. Only types accessed at least queryMin times in this query count.
func (o *Ontology) CheckQuery(ctx context.Context, accessed []apptype.Node) ([]apptype.TypeName, error) {
	perType := make(map[apptype.TypeName]int)
	for _, n := range accessed {
		perType[n.EntityType]++
	}
	var promoted []apptype.TypeName
	for _, t := range sortedTypes(perType) {
		if perType[t] < o.queryMin {
			continue
		}
		total := o.counter.Add(t, perType[t])
		if total < o.threshold {
			continue
		}
		ok, err := o.Promote(ctx, t, total, TriggerQuery)
		if err != nil {
			return promoted, err
		}
		if ok {
			promoted = append(promoted, t)
		}
	}
	return promoted, nil
}

func (o *Ontology) registered(ctx context.Context) (map[apptype.TypeName]struct{}, error) {
	types, err := o.store.ListSchemaTypes(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[apptype.TypeName]struct{}, len(types))
	for _, st := range types {
		out[st.Name] = struct{}{}
	}
	return out, nil
}

func sortedTypes(m map[apptype.TypeName]int) []apptype.TypeName {
	out := make([]apptype.TypeName, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
