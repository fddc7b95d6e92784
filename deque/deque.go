// Package deque implements a bounded work-stealing deque.
//
// One goroutine owns the deque and pushes/pops at the bottom end (LIFO).
// Any number of other goroutines steal from the top end (FIFO). Only the race
// for the last remaining item is resolved with a CAS on top; a thief that
// loses a race returns empty rather than retrying, leaving the retry policy to
// the caller.
package deque

import (
	"errors"
	"math/bits"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var (
	// ErrInvalidCapacity is returned by New for non-positive capacities.
	ErrInvalidCapacity = errors.New("deque: capacity must be positive")

	// ErrFull is returned by Push when every cell holds an item.
	ErrFull = errors.New("deque: full")
)

const maxCapacity = 1 << 30

// Deque is a fixed-size circular buffer of *T with owner and thief ends.
// Push and Pop must only be called by the owner.
type Deque[T any] struct {
	cells []atomic.Pointer[T]
	mask  int64

	_      cpu.CacheLinePad
	top    atomic.Int64
	_      cpu.CacheLinePad
	bottom atomic.Int64
	_      cpu.CacheLinePad
}

// New returns a deque with room for at least capacity items. The capacity is
// rounded up to a power of two.
func New[T any](capacity int) (*Deque[T], error) {
	if capacity <= 0 || capacity > maxCapacity {
		return nil, ErrInvalidCapacity
	}
	size := 1 << bits.Len(uint(capacity-1))
	return &Deque[T]{
		cells: make([]atomic.Pointer[T], size),
		mask:  int64(size - 1),
	}, nil
}

// Push adds v at the bottom. Owner only.
func (d *Deque[T]) Push(v *T) error {
	b := d.bottom.Load()
	t := d.top.Load()
	if b-t > d.mask {
		return ErrFull
	}
	d.cells[b&d.mask].Store(v)
	d.bottom.Store(b + 1)
	return nil
}

// Pop removes the most recently pushed item. Owner only.
func (d *Deque[T]) Pop() (*T, bool) {
	b := d.bottom.Load() - 1
	d.bottom.Store(b)
	t := d.top.Load()

	if t > b {
		// empty, undo the speculative decrement
		d.bottom.Store(t)
		return nil, false
	}

	v := d.cells[b&d.mask].Load()
	if t < b {
		return v, true
	}

	// Last item: whoever advances top wins it.
	won := d.top.CompareAndSwap(t, t+1)
	d.bottom.Store(t + 1)
	if !won {
		return nil, false
	}
	return v, true
}

// Steal removes the oldest item. Safe for any goroutine other than the owner.
// It returns false when the deque is empty or the race for the item was lost.
func (d *Deque[T]) Steal() (*T, bool) {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		return nil, false
	}

	v := d.cells[t&d.mask].Load()
	if !d.top.CompareAndSwap(t, t+1) {
		return nil, false
	}
	return v, true
}

// Size returns max(0, bottom-top). Advisory under concurrency.
func (d *Deque[T]) Size() int {
	n := d.bottom.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Capacity returns the number of cells.
func (d *Deque[T]) Capacity() int {
	return len(d.cells)
}
