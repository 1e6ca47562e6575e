// Package blackboard provides the key/value store shared between the host
// loop and an agent's actions and perceptions.
package blackboard

import (
	"maps"
	"slices"
	"sync"
)

// Blackboard is safe for concurrent use. The zero value is ready to use.
// Host goroutines (MQTT signals, the diagnostics API) write while the agent's
// tick goroutine reads.
type Blackboard struct {
	mu   sync.RWMutex
	data map[string]any
}

func New() *Blackboard {
	return &Blackboard{data: make(map[string]any)}
}

// Get returns nil for missing keys.
func (b *Blackboard) Get(key string) any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data[key]
}

func (b *Blackboard) Lookup(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	return v, ok
}

func (b *Blackboard) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		b.data = make(map[string]any)
	}
	b.data[key] = value
}

func (b *Blackboard) Has(key string) bool {
	_, ok := b.Lookup(key)
	return ok
}

func (b *Blackboard) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
}

// Keys returns the keys in sorted order.
func (b *Blackboard) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Sorted(maps.Keys(b.data))
}

func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Snapshot returns a shallow copy of the data.
func (b *Blackboard) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.data))
	maps.Copy(out, b.data)
	return out
}

// Float returns the value under key as float64. Integer types convert; other
// types and missing keys report false.
func (b *Blackboard) Float(key string) (float64, bool) {
	switch v := b.Get(key).(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// FloatOr returns Float(key), or def when the key is missing or not numeric.
func (b *Blackboard) FloatOr(key string, def float64) float64 {
	if v, ok := b.Float(key); ok {
		return v
	}
	return def
}

// Bool reports the value under key when it is a bool.
func (b *Blackboard) Bool(key string) bool {
	v, _ := b.Get(key).(bool)
	return v
}

// Add increments a numeric value by delta and returns the new value. Missing
// or non-numeric values start from zero.
func (b *Blackboard) Add(key string, delta float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		b.data = make(map[string]any)
	}
	cur, _ := b.data[key].(float64)
	cur += delta
	b.data[key] = cur
	return cur
}
