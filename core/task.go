package core

import (
	"sync/atomic"

	"github.com/Swind/go-task-graph/pool"
)

// Func is the body of a task. It receives the running task, through which it
// can spawn children or chains that complete before the task does.
type Func func(t *Task)

// Handle is a weak, generation-checked reference to a task slot. It becomes
// invalid as soon as the task has finished and its slot was recycled, which is
// how Wait observes completion.
type Handle = pool.Handle[Task]

type taskState int32

const (
	stateCreated taskState = iota
	stateSubmitted
	stateRunning
	stateFinished
)

func (s taskState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateSubmitted:
		return "submitted"
	case stateRunning:
		return "running"
	case stateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Task is the schedulable unit. Tasks live in worker pools and are only ever
// referenced through Handle outside of their own callback.
//
// pending starts at 1 for the task's own body and is raised by one for every
// child created under it; the task completes when it drops to zero.
type Task struct {
	fn       Func
	call     any // typed callback for CreateWith
	teardown Func
	parent   Handle
	next     Handle
	self     Handle
	pending  atomic.Int64
	state    atomic.Int32

	// worker executing the task; only read from inside the callback
	worker *Worker

	payload payload
}

// Handle returns the task's own handle.
func (t *Task) Handle() Handle {
	return t.self
}

// Worker returns the worker currently executing the task.
func (t *Task) Worker() *Worker {
	return t.worker
}

// Graph returns the graph of the executing worker.
func (t *Task) Graph() *Graph {
	return t.executing().graph
}

// Parent returns the parent handle, zero for root tasks.
func (t *Task) Parent() Handle {
	return t.parent
}

// Pending returns the outstanding count: the task's own body plus unfinished
// children. Advisory.
func (t *Task) Pending() int64 {
	return t.pending.Load()
}

// Create allocates a child of t on the executing worker without submitting it.
func (t *Task) Create(fn Func) (Handle, error) {
	return t.executing().CreateChild(t.self, fn)
}

// Spawn creates a child of t on the executing worker and submits it. t does
// not complete before the child does.
func (t *Task) Spawn(fn Func) (Handle, error) {
	return t.executing().AddChild(t.self, fn)
}

// Chain starts a continuation chain whose wrapper is a child of t.
func (t *Task) Chain() *ChainBuilder {
	return t.executing().ChainUnder(t.self)
}

// SetTeardown installs a hook that runs exactly once after the task and all of
// its descendants have finished, before the slot is recycled. A hook set
// alongside typed data runs before the data is destroyed.
func (t *Task) SetTeardown(fn Func) {
	if fn == nil {
		return
	}
	if prev := t.teardown; prev != nil {
		t.teardown = func(t *Task) {
			fn(t)
			prev(t)
		}
		return
	}
	t.teardown = fn
}

func (t *Task) executing() *Worker {
	if t.worker == nil {
		violation("task", "task is not running on a worker")
	}
	return t.worker
}

func (t *Task) run(w *Worker) {
	if !t.state.CompareAndSwap(int32(stateSubmitted), int32(stateRunning)) {
		violation("run", "task in state %s cannot run", taskState(t.state.Load()))
	}
	t.worker = w
	if t.fn != nil {
		w.invoke(t)
	}
	t.finish(w)
}

// finish drops one pending reference. The goroutine that takes it to zero
// tears the task down, recycles its slot, schedules the continuation and then
// notifies the parent, so a parent never completes while a descendant slot is
// still outstanding.
func (t *Task) finish(w *Worker) {
	remaining := t.pending.Add(-1)
	if remaining > 0 {
		return
	}
	if remaining < 0 {
		violation("finish", "task finished more than once")
	}
	t.state.Store(int32(stateFinished))

	parent, next := t.parent, t.next
	if t.teardown != nil {
		t.teardown(t)
	}
	t.self.Release()

	if !next.IsZero() {
		w.schedule(next.Value())
	}
	if !parent.IsZero() {
		parent.Value().finish(w)
	}
}

// discard releases a task that never ran, propagating to its parent as if it
// had finished. The continuation, if any, is left to the caller.
func (t *Task) discard(w *Worker) {
	parent := t.parent
	if t.teardown != nil {
		t.teardown(t)
	}
	t.self.Release()
	if !parent.IsZero() {
		parent.Value().finish(w)
	}
}
