package core

// ChainBuilder appends a linear sequence of tasks that run one after another,
// each only after its predecessor and all of the predecessor's descendants have
// finished. Every task in the chain is a child of a shared wrapper task, whose
// handle Submit returns; waiting on it waits for the whole chain.
//
// A builder must be used from the goroutine driving its worker.
type ChainBuilder struct {
	w       *Worker
	wrapper Handle
	first   *Task
	last    *Task
	tasks   []Handle
	err     error
	done    bool
}

func newChain(w *Worker, parent Handle) *ChainBuilder {
	b := &ChainBuilder{w: w}
	h, _, err := w.allocate(nil, parent)
	if err != nil {
		b.err = err
		return b
	}
	b.wrapper = h
	return b
}

// Add appends fn to the chain. After the first failure Add is a no-op and the
// error is reported by Submit.
func (b *ChainBuilder) Add(fn Func) *ChainBuilder {
	if b.done {
		violation("chain", "add after submit")
	}
	if b.err != nil {
		return b
	}
	h, t, err := b.w.allocate(fn, b.wrapper)
	if err != nil {
		b.err = err
		return b
	}
	b.link(h, t)
	return b
}

func (b *ChainBuilder) link(h Handle, t *Task) {
	if b.last == nil {
		b.first = t
	} else {
		b.last.next = h
	}
	b.last = t
	b.tasks = append(b.tasks, h)
}

// Err returns the first allocation error, if any.
func (b *ChainBuilder) Err() error {
	return b.err
}

// Len returns the number of tasks appended so far.
func (b *ChainBuilder) Len() int {
	return len(b.tasks)
}

// Submit schedules the wrapper and the head of the chain. If any allocation
// failed, every task the builder obtained is released and the error returned;
// nothing in the chain runs.
func (b *ChainBuilder) Submit() (Handle, error) {
	if b.done {
		violation("chain", "submitted twice")
	}
	b.done = true
	if b.err != nil {
		b.unwind()
		return Handle{}, b.err
	}

	b.w.schedule(b.wrapper.Value())
	if b.first != nil {
		b.w.schedule(b.first)
	}
	return b.wrapper, nil
}

func (b *ChainBuilder) unwind() {
	for _, h := range b.tasks {
		b.w.Discard(h)
	}
	if !b.wrapper.IsZero() {
		b.w.Discard(b.wrapper)
	}
	b.tasks = nil
	b.first, b.last = nil, nil
}

// ChainWith appends a task carrying typed data to the chain.
func ChainWith[D any](b *ChainBuilder, data D, fn func(t *Task, data *D)) *ChainBuilder {
	if b.done {
		violation("chain", "add after submit")
	}
	if b.err != nil {
		return b
	}
	h, t, err := allocateWith(b.w, b.wrapper, data, fn)
	if err != nil {
		b.err = err
		return b
	}
	b.link(h, t)
	return b
}
