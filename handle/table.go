// Package handle maps opaque resources to small, stable integer IDs that can
// cross a language boundary.
//
// A Table is a fixed arena of slots. IDs are 1-based and encode the slot
// index together with the slot's generation:
//
//	id = generation*capacity + index + 1
//
// so the first capacity registrations yield 1..capacity. Releasing a slot
// bumps its generation, which makes every ID previously issued for it stale.
// An ID is never issued twice; slots whose generation would leave the 31-bit
// ID space are retired instead of reused.
package handle

import (
	"errors"
	"math"
	"sync"
)

// ID is a 1-based handle. The zero value is never valid.
type ID int

// Invalid is the failure sentinel.
const Invalid ID = 0

var (
	// ErrFull is returned when every slot is live.
	ErrFull = errors.New("handle table full")
	// ErrNotFound is returned for out-of-range, stale or never issued IDs.
	ErrNotFound = errors.New("handle not found")
)

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Table is a bounded registry of T. It is safe for concurrent use.
type Table[T any] struct {
	mu     sync.RWMutex
	slots  []slot[T]
	fresh  int   // slots [fresh:] have never been used
	free   []int // released slot indexes, oldest first
	live   int
	maxGen uint32
}

// New returns a table with room for capacity live entries.
func New[T any](capacity int) *Table[T] {
	if capacity <= 0 {
		panic("handle: capacity must be positive")
	}
	return &Table[T]{
		slots:  make([]slot[T], capacity),
		maxGen: uint32((math.MaxInt32 - capacity) / capacity),
	}
}

// Register stores v and returns its ID.
func (t *Table[T]) Register(v T) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx int
	switch {
	case t.fresh < len(t.slots):
		idx = t.fresh
		t.fresh++
	case len(t.free) > 0:
		idx = t.free[0]
		t.free = t.free[1:]
	default:
		return Invalid, ErrFull
	}

	s := &t.slots[idx]
	s.value = v
	s.live = true
	t.live++
	return t.encode(idx, s.gen), nil
}

// Lookup returns the value registered under id.
func (t *Table[T]) Lookup(id ID) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx, ok := t.resolve(id)
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return t.slots[idx].value, nil
}

// Contains reports whether id is live.
func (t *Table[T]) Contains(id ID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.resolve(id)
	return ok
}

// Release removes id and returns the value it referenced so the caller can
// free the underlying resource.
func (t *Table[T]) Release(id ID) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	idx, ok := t.resolve(id)
	if !ok {
		return zero, ErrNotFound
	}

	s := &t.slots[idx]
	v := s.value
	s.value = zero
	s.live = false
	t.live--
	if s.gen < t.maxGen {
		s.gen++
		t.free = append(t.free, idx)
	}
	return v, nil
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Cap returns the capacity the table was created with.
func (t *Table[T]) Cap() int {
	return len(t.slots)
}

// Range calls fn for every live entry in slot order until fn returns false.
// The table is read-locked for the duration; fn must not call back into it.
func (t *Table[T]) Range(fn func(id ID, v T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := 0; i < t.fresh; i++ {
		s := &t.slots[i]
		if !s.live {
			continue
		}
		if !fn(t.encode(i, s.gen), s.value) {
			return
		}
	}
}

func (t *Table[T]) encode(idx int, gen uint32) ID {
	return ID(int(gen)*len(t.slots) + idx + 1)
}

func (t *Table[T]) resolve(id ID) (int, bool) {
	if id <= Invalid || int64(id) > math.MaxInt32 {
		return 0, false
	}
	n := int(id) - 1
	idx := n % len(t.slots)
	gen := uint32(n / len(t.slots))
	if idx >= t.fresh {
		return 0, false
	}
	s := &t.slots[idx]
	if !s.live || s.gen != gen {
		return 0, false
	}
	return idx, true
}
