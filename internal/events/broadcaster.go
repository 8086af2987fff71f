package events

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/metrics"
)

// Observer handles one delivered event. Returning an error unsubscribes it.
type Observer func(Event) error

type subscriber struct {
	id string
	fn Observer
}

// Broadcaster fans events out to live observers. A failing observer is
// removed and does not affect delivery to the others.
type Broadcaster struct {
	log  *zap.Logger
	mu   sync.RWMutex
	subs map[uint64]subscriber
	next uint64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		log:  log.Named("events"),
		subs: make(map[uint64]subscriber),
	}
}

// Subscribe registers fn under a diagnostic id and returns its unsubscribe func.
func (b *Broadcaster) Subscribe(id string, fn Observer) func() {
	b.mu.Lock()
	key := b.next
	b.next++
	b.subs[key] = subscriber{id: id, fn: fn}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(key) })
	}
}

func (b *Broadcaster) remove(key uint64) {
	b.mu.Lock()
	delete(b.subs, key)
	b.mu.Unlock()
}

// SubscriberCount returns the number of live observers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Emit delivers ev to a snapshot of the current observers.
func (b *Broadcaster) Emit(ev Event) {
	b.mu.RLock()
	snapshot := make(map[uint64]subscriber, len(b.subs))
	for k, s := range b.subs {
		snapshot[k] = s
	}
	b.mu.RUnlock()

	for key, s := range snapshot {
		if err := deliver(s.fn, ev); err != nil {
			b.log.Warn("dropping observer after failed delivery",
				zap.String("observer", s.id),
				zap.String("event", string(ev.Type)),
				zap.Error(err))
			metrics.Default().IncObserverDrop()
			b.remove(key)
		}
	}
}

func deliver(fn Observer, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return fn(ev)
}

// Publish is a convenience for non-traversal notifications.
func (b *Broadcaster) Publish(kind Kind, data map[string]any) {
	b.Emit(Event{Type: kind, Data: data, Timestamp: nowUTC()})
}
