// Package pool provides a fixed-capacity, lock-free object pool.
//
// Every slot is preallocated when the pool is built and is recycled through an
// intrusive free list. Obtain and Release are safe to call from any number of
// goroutines; they synchronize only through a compare-and-swap loop on the
// free-list head.
//
// Slots carry a generation counter that is bumped on every release. A Handle
// records the generation it was issued with, so holders of a recycled slot can
// detect that their reference went stale:
//
//	p, _ := pool.New[Item](128)
//	h, err := p.Obtain(func(it *Item) { it.ID = 1 })
//	if errors.Is(err, pool.ErrExhausted) {
//		// back off
//	}
//	h.Release()
//	h.Valid() // false
package pool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

var (
	// ErrZeroCapacity is returned by New when the requested capacity is not positive.
	ErrZeroCapacity = errors.New("pool: capacity must be positive")

	// ErrExhausted is returned by Obtain when no slot is free. It is an expected
	// outcome under load.
	ErrExhausted = errors.New("pool: exhausted")

	// ErrContractViolation marks panics raised for caller bugs: stale or foreign
	// handles, double release and pointers outside the pool storage.
	ErrContractViolation = errors.New("contract violation")
)

// maxCapacity keeps slot indices within the low half of the tagged head word.
const maxCapacity = 1<<32 - 2

// Destroyer is implemented by pooled values that hold resources which must be
// dropped when their slot is released.
type Destroyer interface {
	Destroy()
}

type slot[T any] struct {
	// value must stay the first field: ReleaseValue and HandleOf convert a
	// *T back into its slot.
	value T

	owner *Pool[T]
	index uint32
	next  atomic.Uint32 // index+1 of the next free slot, 0 terminates
	inUse atomic.Bool
	gen   atomic.Uint64
}

// Pool is a fixed-capacity free list of T values.
type Pool[T any] struct {
	slots []slot[T]

	_ cpu.CacheLinePad
	// head packs (tag<<32 | index+1). The tag changes on every successful swap
	// so a pop that raced with pop+push of the same slot fails its CAS.
	head atomic.Uint64
	_    cpu.CacheLinePad

	free atomic.Int64
}

// New builds a pool with capacity preallocated slots, all of them free.
func New[T any](capacity int) (*Pool[T], error) {
	if capacity <= 0 {
		return nil, ErrZeroCapacity
	}
	if capacity > maxCapacity {
		return nil, fmt.Errorf("pool: capacity %d exceeds %d", capacity, maxCapacity)
	}

	p := &Pool[T]{slots: make([]slot[T], capacity)}
	for i := range p.slots {
		s := &p.slots[i]
		s.owner = p
		s.index = uint32(i)
		if i < capacity-1 {
			s.next.Store(uint32(i + 2))
		}
	}
	p.head.Store(1)
	p.free.Store(int64(capacity))
	return p, nil
}

// Obtain pops a free slot, runs init on its value in place and returns a
// handle carrying the slot's current generation. init may be nil.
//
// ErrExhausted is returned when the free list is empty.
func (p *Pool[T]) Obtain(init func(*T)) (Handle[T], error) {
	var s *slot[T]
	for {
		old := p.head.Load()
		idx := uint32(old)
		if idx == 0 {
			return Handle[T]{}, ErrExhausted
		}
		s = &p.slots[idx-1]
		next := s.next.Load()
		if p.head.CompareAndSwap(old, nextTag(old)|uint64(next)) {
			break
		}
	}

	if !s.inUse.CompareAndSwap(false, true) {
		violation("obtain", "slot %d popped while in use", s.index)
	}
	p.free.Add(-1)

	if init != nil {
		init(&s.value)
	}
	return Handle[T]{s: s, gen: s.gen.Load()}, nil
}

// Release destroys the value behind h, invalidates every outstanding handle to
// its slot and returns the slot to the free list.
//
// Releasing a stale, zero or foreign handle panics.
func (p *Pool[T]) Release(h Handle[T]) {
	if h.s == nil {
		violation("release", "zero handle")
	}
	if h.s.owner != p {
		violation("release", "handle belongs to another pool")
	}
	if h.s.gen.Load() != h.gen {
		violation("release", "stale handle for slot %d (generation %d, current %d)", h.s.index, h.gen, h.s.gen.Load())
	}
	p.release(h.s)
}

// ReleaseValue releases the slot holding v. v must have been handed out by
// this pool.
func (p *Pool[T]) ReleaseValue(v *T) {
	s := p.slotOf(v)
	if s == nil {
		violation("release", "pointer %p is outside the pool storage", v)
	}
	p.release(s)
}

// HandleOf recovers a handle for the slot holding v, stamped with the slot's
// current generation. It reports false if v is not a value of this pool or its
// slot is free.
func (p *Pool[T]) HandleOf(v *T) (Handle[T], bool) {
	s := p.slotOf(v)
	if s == nil || !s.inUse.Load() {
		return Handle[T]{}, false
	}
	return Handle[T]{s: s, gen: s.gen.Load()}, true
}

// Size returns the number of free slots. It is advisory under concurrency.
func (p *Pool[T]) Size() int {
	return int(p.free.Load())
}

// Capacity returns the number of slots the pool was built with.
func (p *Pool[T]) Capacity() int {
	return len(p.slots)
}

// InUse returns Capacity()-Size().
func (p *Pool[T]) InUse() int {
	return p.Capacity() - p.Size()
}

func (p *Pool[T]) release(s *slot[T]) {
	if !s.inUse.CompareAndSwap(true, false) {
		violation("release", "slot %d released twice", s.index)
	}

	if d, ok := any(&s.value).(Destroyer); ok {
		d.Destroy()
	}
	var zero T
	s.value = zero
	// counted before the generation moves so that anyone observing the stale
	// handle also observes the slot as free
	p.free.Add(1)
	s.gen.Add(1)

	for {
		old := p.head.Load()
		s.next.Store(uint32(old))
		if p.head.CompareAndSwap(old, nextTag(old)|uint64(s.index+1)) {
			break
		}
	}
}

func (p *Pool[T]) slotOf(v *T) *slot[T] {
	if v == nil || len(p.slots) == 0 {
		return nil
	}
	base := uintptr(unsafe.Pointer(&p.slots[0]))
	addr := uintptr(unsafe.Pointer(v))
	size := unsafe.Sizeof(p.slots[0])
	if addr < base || addr >= base+size*uintptr(len(p.slots)) {
		return nil
	}
	if (addr-base)%size != 0 {
		return nil
	}
	return &p.slots[(addr-base)/size]
}

func nextTag(head uint64) uint64 {
	return (head>>32 + 1) << 32
}

func violation(op, format string, args ...any) {
	panic(fmt.Errorf("pool: %s: %w: %s", op, ErrContractViolation, fmt.Sprintf(format, args...)))
}
