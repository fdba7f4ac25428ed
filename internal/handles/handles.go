// Package handles provides a thread-safe table that maps integer ids to Go
// values.
//
// The reclaimer registers every tracked native resource here so it can
// enumerate the ones still live when the engine is torn down. Ids start at 1;
// 0 is never issued and can be used as "not registered".
package handles

import (
	"slices"
	"sync"
)

// Table maps ids to values. The zero value is not usable; use New.
type Table[T any] struct {
	mu      sync.RWMutex
	entries map[uint64]T
	nextID  uint64
}

// New creates an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{
		entries: make(map[uint64]T),
		nextID:  1,
	}
}

// Register stores v and returns its id.
//
// Thread-safe.
func (t *Table[T]) Register(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.entries[id] = v
	return id
}

// Unregister removes an id. Returns false if it was not registered.
//
// Thread-safe.
func (t *Table[T]) Unregister(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	return true
}

// Count returns the number of currently registered values.
// Useful for debugging and testing leaks.
//
// Thread-safe.
func (t *Table[T]) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Drain removes every entry and returns the values in id order.
//
// Thread-safe.
func (t *Table[T]) Drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uint64, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.entries[id])
	}
	t.entries = make(map[uint64]T)
	return out
}
