// Package events carries trace events from running graphs to the host: a
// bounded history, live subscribers and persistent sinks.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"
)

const (
	DefaultBufferSize = 256
	subscriberBuffer  = 64
)

type Event struct {
	Timestamp string         `json:"ts"`
	Level     string         `json:"level"`
	Name      string         `json:"event"`
	Message   string         `json:"msg,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// JSON encodes the event the way it is streamed to clients.
func (e Event) JSON() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return b, nil
}

// Time parses the event timestamp.
func (e Event) Time() time.Time {
	t, _ := time.Parse(time.RFC3339Nano, e.Timestamp)
	return t
}

// Sink persists or forwards events. Append is called synchronously from Emit.
type Sink interface {
	Append(e Event) error
}

// Subscriber represents a channel that receives events.
type Subscriber chan Event

// Bus validates, records and fans out trace events. It implements core.Tracer.
type Bus struct {
	buffer *RingBuffer
	now    func() time.Time
	logger *slog.Logger

	mu            sync.RWMutex
	subscribers   map[Subscriber]struct{}
	sinks         []Sink
	counts        map[string]uint64
	sinkErrLogged bool
}

// NewBus creates a bus keeping the last size events.
func NewBus(size int) *Bus {
	return &Bus{
		buffer:      NewRingBuffer(size),
		now:         time.Now,
		logger:      slog.Default(),
		subscribers: make(map[Subscriber]struct{}),
		counts:      make(map[string]uint64),
	}
}

// SetLogger replaces the logger used for sink failures.
func (b *Bus) SetLogger(l *slog.Logger) {
	if l != nil {
		b.logger = l
	}
}

// SetNow replaces the timestamp source. Used for testing.
func (b *Bus) SetNow(now func() time.Time) { b.now = now }

// AddSink registers a sink for every subsequent event.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Emit records an allowlisted event and delivers it to subscribers and sinks.
func (b *Bus) Emit(level, name, msg string, fields map[string]any) error {
	if err := Validate(name); err != nil {
		return err
	}
	e := Event{
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}
	b.record(e)

	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		if err := s.Append(e); err != nil {
			b.sinkFailed(err)
		}
	}
	return nil
}

func (b *Bus) record(e Event) {
	b.buffer.Add(e)

	b.mu.Lock()
	b.counts[e.Name]++
	b.mu.Unlock()

	b.broadcast(e)
}

// sinkFailed reports the first sink failure as system.error. It goes to the
// buffer and subscribers only, so a failing sink is never re-entered.
func (b *Bus) sinkFailed(err error) {
	b.mu.Lock()
	logged := b.sinkErrLogged
	b.sinkErrLogged = true
	b.mu.Unlock()
	if logged {
		return
	}
	b.logger.Error("event sink append failed", "error", err)
	b.record(Event{
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "sink append failed",
		Fields:    map[string]any{"error": err.Error()},
	})
}

// Subscribe adds a new subscriber and returns its channel.
// The channel is buffered so slow clients do not block Emit.
func (b *Bus) Subscribe() Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// CloseAllSubscribers closes every subscriber channel. Used on shutdown.
func (b *Bus) CloseAllSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		close(sub)
	}
	b.subscribers = make(map[Subscriber]struct{})
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// broadcast never blocks: a full subscriber misses the event.
func (b *Bus) broadcast(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- e:
		default:
		}
	}
}

func (b *Bus) Snapshot() []Event { return b.buffer.Snapshot() }

// Recent returns the last n events. n <= 0 returns all buffered events.
func (b *Bus) Recent(n int) []Event { return b.buffer.Recent(n) }

// Counts returns the number of events emitted per name since creation.
func (b *Bus) Counts() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.counts)
}

// Clear resets the history. Counters are kept.
func (b *Bus) Clear() { b.buffer.Clear() }

// Tagged returns a tracer that adds tags to every event's fields before
// emitting it on b.
func (b *Bus) Tagged(tags map[string]any) *Tagged {
	return &Tagged{bus: b, tags: tags}
}

// Tagged is a tracer bound to one agent or component.
type Tagged struct {
	bus  *Bus
	tags map[string]any
}

func (t *Tagged) Emit(level, name, msg string, fields map[string]any) error {
	merged := make(map[string]any, len(fields)+len(t.tags))
	maps.Copy(merged, t.tags)
	maps.Copy(merged, fields)
	return t.bus.Emit(level, name, msg, merged)
}
