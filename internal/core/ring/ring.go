// Package ring provides a fixed-capacity buffer that evicts its oldest entry
// once full.
package ring

import "sync"

// Buffer is a fixed-capacity FIFO buffer safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // index of the oldest item
	size  int
}

// New creates a buffer holding at most capacity items. Capacity below 1 is
// raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Cap returns the configured capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Len returns the number of stored items.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Push appends v, evicting the oldest item when full. It reports whether an
// item was evicted.
func (b *Buffer[T]) Push(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = v
		b.size++
		return false
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
	return true
}

// Items returns a copy of the stored items, oldest first.
func (b *Buffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Update applies fn to the first item (oldest first) for which match returns
// true. It reports whether an item was updated.
func (b *Buffer[T]) Update(match func(T) bool, fn func(*T)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.size; i++ {
		idx := (b.head + i) % len(b.items)
		if match(b.items[idx]) {
			fn(&b.items[idx])
			return true
		}
	}
	return false
}

// Last returns the most recently pushed item.
func (b *Buffer[T]) Last() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.head+b.size-1)%len(b.items)], true
}

// Reset drops every item.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head, b.size = 0, 0
}
