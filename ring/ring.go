// Package ring stages short-lived records in a fixed circular buffer and
// hands out 1-based slot IDs for them.
//
// A slot ID is only meaningful until capacity more records have been pushed;
// after that the slot holds a newer record. Each slot remembers the sequence
// number of the push that filled it so callers that care can detect the
// overwrite.
package ring

import "sync"

type entry[T any] struct {
	value T
	seq   uint64
}

// Ring is a bounded, overwrite-oldest buffer. It is safe for concurrent use.
type Ring[T any] struct {
	mu         sync.RWMutex
	slots      []entry[T]
	cursor     int
	pushed     uint64
	overwrites uint64
}

// New returns a ring with capacity slots.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Ring[T]{slots: make([]entry[T], capacity)}
}

// Push stores v in the next slot and returns the slot ID and the record's
// sequence number. Sequence numbers start at 1.
func (r *Ring[T]) Push(v T) (int, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &r.slots[r.cursor]
	if e.seq != 0 {
		r.overwrites++
	}
	r.pushed++
	e.value = v
	e.seq = r.pushed

	id := r.cursor + 1
	r.cursor = (r.cursor + 1) % len(r.slots)
	return id, r.pushed
}

// Get returns whatever occupies slot id. ok is false only when id is outside
// [1, capacity]; a slot that was never written yields the zero value.
func (r *Ring[T]) Get(id int) (T, bool) {
	v, _, ok := r.Entry(id)
	return v, ok
}

// Entry is Get plus the sequence number of the occupying record (0 when the
// slot was never written).
func (r *Ring[T]) Entry(id int) (T, uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 1 || id > len(r.slots) {
		var zero T
		return zero, 0, false
	}
	e := r.slots[id-1]
	return e.value, e.seq, true
}

// Recent returns up to n records, newest first.
func (r *Ring[T]) Recent(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > len(r.slots) {
		n = len(r.slots)
	}
	if uint64(n) > r.pushed {
		n = int(r.pushed)
	}
	out := make([]T, 0, n)
	idx := r.cursor
	for i := 0; i < n; i++ {
		idx = (idx - 1 + len(r.slots)) % len(r.slots)
		out = append(out, r.slots[idx].value)
	}
	return out
}

// Pushed returns the total number of pushes.
func (r *Ring[T]) Pushed() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pushed
}

// Overwrites returns how many pushes replaced an already occupied slot.
func (r *Ring[T]) Overwrites() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.overwrites
}

func (r *Ring[T]) Cap() int {
	return len(r.slots)
}
