// Package handle implements generational handles over slot storage.
package handle

import "errors"

// ErrStale is returned by operations given a handle whose slot was freed or reused.
var ErrStale = errors.New("stale handle")

// Handle encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on free to invalidate stale refs.
// Generations start at 1 so the zero Handle is never valid.
type Handle[T any] uint64

func New[T any](index uint32, generation uint32) Handle[T] {
	return Handle[T](uint64(generation)<<32 | uint64(index))
}

func (h Handle[T]) Index() uint32      { return uint32(h) }
func (h Handle[T]) Generation() uint32 { return uint32(h >> 32) }
func (h Handle[T]) IsNil() bool        { return h == 0 }

type slot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Table stores values addressed by generational handles, reusing freed
// slots from a free list.
type Table[T any] struct {
	slots    []slot[T]
	freeList []uint32
	live     int
}

func NewTable[T any](capacity int) *Table[T] {
	return &Table[T]{
		slots:    make([]slot[T], 0, capacity),
		freeList: make([]uint32, 0, capacity/4),
	}
}

// Allocate stores v and returns its handle.
func (t *Table[T]) Allocate(v T) Handle[T] {
	t.live++
	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		s := &t.slots[idx]
		s.value = v
		s.live = true
		return New[T](idx, s.generation)
	}
	idx := uint32(len(t.slots))
	t.slots = append(t.slots, slot[T]{value: v, generation: 1, live: true})
	return New[T](idx, 1)
}

func (t *Table[T]) lookup(h Handle[T]) *slot[T] {
	idx := h.Index()
	if h.IsNil() || int(idx) >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if !s.live || s.generation != h.Generation() {
		return nil
	}
	return s
}

func (t *Table[T]) Alive(h Handle[T]) bool {
	return t.lookup(h) != nil
}

// Get returns a copy of the value stored for h.
func (t *Table[T]) Get(h Handle[T]) (T, bool) {
	s := t.lookup(h)
	if s == nil {
		var zero T
		return zero, false
	}
	return s.value, true
}

// GetPtr returns a pointer into the table, or nil for an invalid handle.
// The pointer is invalidated by the next Allocate.
func (t *Table[T]) GetPtr(h Handle[T]) *T {
	s := t.lookup(h)
	if s == nil {
		return nil
	}
	return &s.value
}

// Set overwrites the value stored for h.
func (t *Table[T]) Set(h Handle[T], v T) bool {
	s := t.lookup(h)
	if s == nil {
		return false
	}
	s.value = v
	return true
}

// Free releases the slot and bumps its generation. Freeing an already
// freed handle is a no-op and reports false.
func (t *Table[T]) Free(h Handle[T]) bool {
	s := t.lookup(h)
	if s == nil {
		return false
	}
	var zero T
	s.value = zero
	s.live = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	t.freeList = append(t.freeList, h.Index())
	t.live--
	return true
}

func (t *Table[T]) Len() int { return t.live }

// Each visits live slots in index order. fn must not allocate or free.
func (t *Table[T]) Each(fn func(Handle[T], *T)) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.live {
			fn(New[T](uint32(i), s.generation), &s.value)
		}
	}
}
