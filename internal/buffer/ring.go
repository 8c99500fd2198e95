package buffer

import (
	"fmt"
	"time"
)

// Ring is a fixed-capacity circular buffer. Once full, every Push
// overwrites the oldest entry. Ring is not safe for concurrent use; owners
// serialize access.
type Ring[T any] struct {
	items  []T
	next   int // write cursor
	length int
	stats  Stats
}

// Stats tracks buffer usage statistics
type Stats struct {
	TotalPushed  int64
	TotalEvicted int64
	LastPushTime time.Time
}

// NewRing creates a ring with the given capacity. Capacities below 1 are
// raised to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry when the ring is full.
// Returns true if an entry was evicted.
func (r *Ring[T]) Push(v T) bool {
	evicted := r.length == len(r.items)
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	if evicted {
		r.stats.TotalEvicted++
	} else {
		r.length++
	}
	r.stats.TotalPushed++
	r.stats.LastPushTime = time.Now()
	return evicted
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.length)
	start := (r.next - r.length + len(r.items)) % len(r.items)
	for i := 0; i < r.length; i++ {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

// Latest returns up to n entries, newest first.
func (r *Ring[T]) Latest(n int) []T {
	if n > r.length {
		n = r.length
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.items)) % len(r.items)
		out[i] = r.items[idx]
	}
	return out
}

// Last returns the most recent entry.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.length == 0 {
		return zero, false
	}
	return r.items[(r.next-1+len(r.items))%len(r.items)], true
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int {
	return r.length
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Reset drops every entry but keeps the backing array.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.next = 0
	r.length = 0
	r.stats = Stats{}
}

// Stats returns a copy of current buffer statistics
func (r *Ring[T]) Stats() Stats {
	return r.stats
}

func (r *Ring[T]) String() string {
	return fmt.Sprintf("Ring[%d/%d, evicted: %d]", r.length, len(r.items), r.stats.TotalEvicted)
}
