package structure

import "errors"

// NullIndex marks the absence of a slot.
const NullIndex int32 = -1

const allocated int32 = -2

var ErrArenaExhausted = errors.New("structure: arena exhausted")

// Arena is a fixed-capacity pool of T addressed by int32 handles.
// Free slots are chained through a parallel link slice, so Alloc and Free
// are O(1) and never allocate after construction. A handle stays valid until
// it is freed; the arena never grows.
type Arena[T any] struct {
	slots    []T
	next     []int32 // free-list link, or allocated for live slots
	freeHead int32
	used     int32
	peak     int32
}

// NewArena pre-allocates capacity slots.
func NewArena[T any](capacity int32) *Arena[T] {
	if capacity < 0 {
		capacity = 0
	}
	a := &Arena[T]{
		slots: make([]T, capacity),
		next:  make([]int32, capacity),
	}
	a.Reset()
	return a
}

// Reset frees every slot at once.
func (a *Arena[T]) Reset() {
	var zero T
	for i := range a.slots {
		a.slots[i] = zero
		a.next[i] = int32(i) + 1
	}
	if n := len(a.next); n > 0 {
		a.next[n-1] = NullIndex
		a.freeHead = 0
	} else {
		a.freeHead = NullIndex
	}
	a.used = 0
}

// Alloc hands out a zeroed slot.
func (a *Arena[T]) Alloc() (int32, error) {
	idx := a.freeHead
	if idx == NullIndex {
		return NullIndex, ErrArenaExhausted
	}
	a.freeHead = a.next[idx]
	a.next[idx] = allocated
	a.used++
	if a.used > a.peak {
		a.peak = a.used
	}
	return idx, nil
}

// Free returns idx to the pool. Freeing a slot that is not live panics:
// it means two owners believed they held the same handle.
func (a *Arena[T]) Free(idx int32) {
	if !a.Live(idx) {
		panic("structure: free of a slot that is not allocated")
	}
	var zero T
	a.slots[idx] = zero
	a.next[idx] = a.freeHead
	a.freeHead = idx
	a.used--
}

// Get returns a pointer to the slot. The pointer must not be kept across
// a Free of the same handle.
func (a *Arena[T]) Get(idx int32) *T {
	return &a.slots[idx]
}

// Live reports whether idx is currently allocated.
func (a *Arena[T]) Live(idx int32) bool {
	return idx >= 0 && int(idx) < len(a.next) && a.next[idx] == allocated
}

func (a *Arena[T]) Len() int  { return int(a.used) }
func (a *Arena[T]) Cap() int  { return len(a.slots) }
func (a *Arena[T]) Peak() int { return int(a.peak) }
