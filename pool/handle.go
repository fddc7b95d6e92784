package pool

// Handle is a weak reference to a pooled value. It never owns the slot; it is
// valid while the slot's generation still equals the one recorded when the
// handle was issued.
//
// The zero Handle is never valid.
type Handle[T any] struct {
	s   *slot[T]
	gen uint64
}

// Valid reports whether the slot has not been released since the handle was
// issued.
func (h Handle[T]) Valid() bool {
	return h.s != nil && h.s.gen.Load() == h.gen
}

// IsZero reports whether h was never issued by a pool.
func (h Handle[T]) IsZero() bool {
	return h.s == nil
}

// Get returns the value if the handle is still valid. A concurrent release can
// still invalidate the handle right after Get returns; callers that share
// handles across goroutines must rely on their own synchronization for that.
func (h Handle[T]) Get() (*T, bool) {
	if !h.Valid() {
		return nil, false
	}
	return &h.s.value, true
}

// Value returns the value, panicking if the handle is stale.
func (h Handle[T]) Value() *T {
	v, ok := h.Get()
	if !ok {
		violation("deref", "stale handle (generation %d)", h.gen)
	}
	return v
}

// Release returns the slot to the pool that issued it.
func (h Handle[T]) Release() {
	if h.s == nil {
		violation("release", "zero handle")
	}
	h.s.owner.Release(h)
}

// Pool returns the pool that issued the handle, or nil for the zero Handle.
func (h Handle[T]) Pool() *Pool[T] {
	if h.s == nil {
		return nil
	}
	return h.s.owner
}

// Generation returns the generation the handle was issued with.
func (h Handle[T]) Generation() uint64 {
	return h.gen
}

// Index returns the slot index inside its pool, or -1 for the zero Handle.
func (h Handle[T]) Index() int {
	if h.s == nil {
		return -1
	}
	return int(h.s.index)
}
