package events

import (
	"context"
	"sync"
)

// Stream is an unbounded, single-consumer event queue. Producers push with
// Emit and never block; the consumer pulls with Next or C.
type Stream struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	notify chan struct{}
}

// NewStream returns an open stream.
func NewStream() *Stream {
	return &Stream{notify: make(chan struct{}, 1)}
}

// Emit enqueues ev. Events emitted after Close are dropped.
func (s *Stream) Emit(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.wake()
}

// Close marks the end of the stream. Queued events remain readable.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Stream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, the stream is closed and
// drained (ok=false), or ctx is done.
func (s *Stream) Next(ctx context.Context) (Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Event{}, false
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return Event{}, false
		}
	}
}

// C returns a channel fed from the stream until it is drained or ctx ends.
func (s *Stream) C(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			ev, ok := s.Next(ctx)
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len reports the number of queued events.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Collector records every event in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

// Events returns a copy of everything collected.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Phases returns the phase of each collected traversal event in order.
func (c *Collector) Phases() []Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Phase, 0, len(c.events))
	for _, ev := range c.events {
		if ev.Type == KindQueryTraversal {
			out = append(out, ev.Phase)
		}
	}
	return out
}
