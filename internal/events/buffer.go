package events

import "sync"

// RingBuffer keeps the most recent events in insertion order, overwriting the
// oldest once it is full.
type RingBuffer struct {
	mu    sync.RWMutex
	slots []Event
	head  int // index of the oldest event
	n     int
}

func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RingBuffer{slots: make([]Event, size)}
}

func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.n < len(rb.slots) {
		rb.slots[(rb.head+rb.n)%len(rb.slots)] = e
		rb.n++
		return
	}
	rb.slots[rb.head] = e
	rb.head = (rb.head + 1) % len(rb.slots)
}

// Len returns the number of events held.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}

// Snapshot copies every held event, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	return rb.Recent(0)
}

// Recent returns the last n events, oldest first. n <= 0 returns everything held.
func (rb *RingBuffer) Recent(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if n <= 0 || n > rb.n {
		n = rb.n
	}
	out := make([]Event, n)
	start := rb.head + rb.n - n
	for i := range out {
		out[i] = rb.slots[(start+i)%len(rb.slots)]
	}
	return out
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	clear(rb.slots)
	rb.head, rb.n = 0, 0
}
