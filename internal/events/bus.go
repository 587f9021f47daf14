// Package events is the publish/subscribe bus that carries agent run
// progress to live observers (the /v1/events websocket, CLI progress
// output). The bus is nil-safe: Publish on a nil *Bus is a no-op, so
// components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	SourceAgent = "agent"
	SourceTool  = "tool"
	SourceTrace = "trace"
)

// Kind constants describe the type of event within a source.
const (
	// KindRunStart signals the beginning of an agent run.
	// Data: prompt_len, max_iterations, has_reference.
	KindRunStart = "run_start"
	// KindThought carries the model's reasoning for one iteration.
	// Data: iteration, thought.
	KindThought = "thought"
	// KindToolStart signals a tool dispatch.
	// Data: tool, input.
	KindToolStart = "tool_start"
	// KindToolEnd signals a dispatch finished.
	// Data: tool, status (success|error), duration_ms.
	KindToolEnd = "tool_end"
	// KindRunComplete signals the end of a run.
	// Data: success, iterations, error, total_tokens, total_cost_usd.
	KindRunComplete = "run_complete"

	// KindSpanStart and KindSpanEnd mirror trace spans.
	// Data: span_id, name, kind; span_end adds model, tokens, cost_usd.
	KindSpanStart = "span_start"
	KindSpanEnd   = "span_end"
)

// Event is a single operational event.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	SessionID string         `json:"session_id,omitempty"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

type subscriber struct {
	ch      chan Event
	session string // empty receives every session
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[<-chan Event]*subscriber
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{subs: make(map[<-chan Event]*subscriber)}
}

// Publish sends an event to all matching subscribers, stamping the
// timestamp when unset. Safe to call on a nil receiver.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.session != "" && s.session != e.SessionID {
			continue
		}
		select {
		case s.ch <- e:
		default:
			// full: drop for this subscriber
		}
	}
}

// Emit is shorthand for publishing an event built from its parts.
func (b *Bus) Emit(sessionID, source, kind string, data map[string]any) {
	b.Publish(Event{SessionID: sessionID, Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel receiving every published event. The
// caller must eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	return b.SubscribeSession("", bufSize)
}

// SubscribeSession returns a channel receiving only events for one
// session. An empty sessionID subscribes to all sessions.
func (b *Bus) SubscribeSession(sessionID string, bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = &subscriber{ch: ch, session: sessionID}
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Calling it
// twice is a no-op.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[ch]
	if !ok {
		return
	}
	delete(b.subs, ch)
	close(s.ch)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
