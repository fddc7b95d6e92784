package core

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/Swind/go-task-graph/deque"
	"github.com/Swind/go-task-graph/pool"
)

// WorkerMode tells whether a worker owns a goroutine or borrows the caller's.
type WorkerMode int32

const (
	// ModeBackground workers run their own scheduling loop until stopped.
	ModeBackground WorkerMode = iota

	// ModeForeground is the worker driven by the goroutine that built the
	// graph. It only schedules while that goroutine is inside Wait or the
	// shutdown drain.
	ModeForeground
)

func (m WorkerMode) String() string {
	if m == ModeForeground {
		return "foreground"
	}
	return "background"
}

// WorkerState is the lifecycle state of a worker loop.
type WorkerState int32

const (
	StateIdle WorkerState = iota
	StateRunning
	StateStopping
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Worker owns a task pool and a work-stealing deque. Tasks created by code
// running on a worker are allocated from that worker's pool and pushed onto its
// deque; idle workers steal from the others.
type Worker struct {
	index int
	mode  WorkerMode
	graph *Graph

	queue *deque.Deque[Task]
	pool  *pool.Pool[Task]

	state atomic.Int32
	owner atomic.Bool

	// owner-only; last victim a steal succeeded against
	stealCursor int

	threadID  atomic.Int64
	completed atomic.Uint64
	stolen    atomic.Uint64

	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler
	timed        bool
}

func newWorker(g *Graph, index int, mode WorkerMode, cfg *GraphConfig) (*Worker, error) {
	p, err := pool.New[Task](cfg.PoolCapacity)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", index, err)
	}
	q, err := deque.New[Task](cfg.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", index, err)
	}
	_, untimed := cfg.Metrics.(*NilMetrics)
	w := &Worker{
		index:        index,
		mode:         mode,
		graph:        g,
		queue:        q,
		pool:         p,
		stealCursor:  index,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		panicHandler: cfg.PanicHandler,
		timed:        !untimed,
	}
	w.threadID.Store(-1)
	return w, nil
}

// Index returns the worker's position in the graph; 0 is the foreground worker.
func (w *Worker) Index() int { return w.index }

// Mode returns the worker mode.
func (w *Worker) Mode() WorkerMode { return w.mode }

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

// ThreadID returns the OS thread the worker's loop started on, or -1 if
// unknown. Unless the graph pins threads the Go runtime may migrate the loop.
func (w *Worker) ThreadID() int64 { return w.threadID.Load() }

// Completed returns how many tasks this worker has run.
func (w *Worker) Completed() uint64 { return w.completed.Load() }

// Pool returns the worker's task pool, for occupancy diagnostics.
func (w *Worker) Pool() *pool.Pool[Task] { return w.pool }

// Graph returns the owning graph.
func (w *Worker) Graph() *Graph { return w.graph }

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Index:        w.index,
		Mode:         w.mode,
		State:        w.State(),
		ThreadID:     w.ThreadID(),
		Completed:    w.completed.Load(),
		Stolen:       w.stolen.Load(),
		Queued:       w.queue.Size(),
		PoolFree:     w.pool.Size(),
		PoolCapacity: w.pool.Capacity(),
	}
}

// Create allocates a root task from the worker's pool. The task does not run
// until it is submitted.
func (w *Worker) Create(fn Func) (Handle, error) {
	return w.CreateChild(Handle{}, fn)
}

// CreateChild allocates a task under parent. The parent's pending count is
// raised before the child can run, so the parent cannot complete first.
func (w *Worker) CreateChild(parent Handle, fn Func) (Handle, error) {
	h, _, err := w.allocate(fn, parent)
	return h, err
}

// Add creates a root task and submits it.
func (w *Worker) Add(fn Func) (Handle, error) {
	return w.AddChild(Handle{}, fn)
}

// AddChild creates a task under parent and submits it.
func (w *Worker) AddChild(parent Handle, fn Func) (Handle, error) {
	h, err := w.CreateChild(parent, fn)
	if err != nil {
		return Handle{}, err
	}
	if err := w.Submit(h); err != nil {
		w.Discard(h)
		return Handle{}, err
	}
	return h, nil
}

// Submit pushes a created task onto the worker's deque, where it is
// immediately visible to thieves. Only the goroutine driving the worker may
// submit. ErrQueueFull leaves the task unsubmitted; the caller may retry or
// Discard it.
func (w *Worker) Submit(h Handle) error {
	return w.submit(h.Value())
}

// Discard releases a created task that was never submitted.
func (w *Worker) Discard(h Handle) {
	t := h.Value()
	if n := t.pending.Load(); n != 1 {
		violation("discard", "task has %d unfinished children", n-1)
	}
	if !t.state.CompareAndSwap(int32(stateCreated), int32(stateFinished)) {
		violation("discard", "task in state %s cannot be discarded", taskState(t.state.Load()))
	}
	t.discard(w)
}

// Chain starts a continuation chain with no parent.
func (w *Worker) Chain() *ChainBuilder {
	return newChain(w, Handle{})
}

// ChainUnder starts a continuation chain whose wrapper is a child of parent.
func (w *Worker) ChainUnder(parent Handle) *ChainBuilder {
	return newChain(w, parent)
}

// Wait runs available work on the calling goroutine until h has finished,
// yielding between attempts when nothing can be fetched. Only the foreground
// worker can wait. There is no timeout.
func (w *Worker) Wait(h Handle) {
	if w.mode != ModeForeground {
		violation("wait", "worker %d is not the foreground worker", w.index)
	}
	prev := w.state.Swap(int32(StateRunning))
	for h.Valid() {
		if t := w.fetchTask(); t != nil {
			w.execute(t)
		} else {
			runtime.Gosched()
		}
	}
	// a Wait nested inside a task keeps the outer Wait's state
	w.state.Store(prev)
}

func (w *Worker) allocate(fn Func, parent Handle) (Handle, *Task, error) {
	var pt *Task
	if !parent.IsZero() {
		p, ok := parent.Get()
		if !ok {
			violation("create", "parent handle is stale")
		}
		pt = p
	}

	h, err := w.pool.Obtain(func(t *Task) {
		t.fn = fn
		t.parent = parent
		t.pending.Store(1)
		if pt != nil && pt.pending.Add(1) <= 1 {
			violation("create", "parent has already finished")
		}
	})
	if err != nil {
		w.metrics.RecordPoolExhausted(w.index)
		w.warn("pool exhausted", F("worker", w.index), F("capacity", w.pool.Capacity()))
		return Handle{}, nil, fmt.Errorf("worker %d: %w", w.index, err)
	}
	t := h.Value()
	t.self = h
	return h, t, nil
}

func (w *Worker) submit(t *Task) error {
	if !t.state.CompareAndSwap(int32(stateCreated), int32(stateSubmitted)) {
		violation("submit", "task in state %s cannot be submitted", taskState(t.state.Load()))
	}
	w.acquireOwner("push")
	err := w.queue.Push(t)
	w.releaseOwner()
	if err != nil {
		t.state.Store(int32(stateCreated))
		w.metrics.RecordQueueFull(w.index)
		w.warn("queue full", F("worker", w.index), F("capacity", w.queue.Capacity()))
		return fmt.Errorf("worker %d: %w", w.index, err)
	}
	return nil
}

// schedule submits a task whose predecessor already completed. It cannot fail:
// a full deque makes the worker run the task right away.
func (w *Worker) schedule(t *Task) {
	if err := w.submit(t); err != nil {
		w.logger.Debug("running task inline", F("worker", w.index), F("reason", err))
		t.state.Store(int32(stateSubmitted))
		w.execute(t)
	}
}

// fetchTask pops local work first, then probes the other workers once,
// starting at the last successful victim.
func (w *Worker) fetchTask() *Task {
	w.acquireOwner("pop")
	t, ok := w.queue.Pop()
	w.releaseOwner()
	if ok {
		return t
	}

	workers := w.graph.workers
	n := len(workers)
	for i := 0; i < n; i++ {
		idx := (w.stealCursor + i) % n
		if idx == w.index {
			continue
		}
		if t, ok := workers[idx].queue.Steal(); ok {
			w.stealCursor = idx
			w.stolen.Add(1)
			w.metrics.RecordSteal(w.index, idx)
			return t
		}
	}
	return nil
}

func (w *Worker) execute(t *Task) {
	t.run(w)
	w.completed.Add(1)
}

// invoke runs the task body. A panic in the body is reported and swallowed so
// the task still finishes; contract violations are re-raised.
func (w *Worker) invoke(t *Task) {
	var start time.Time
	if w.timed {
		start = time.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			if IsContractViolation(r) {
				panic(r)
			}
			w.metrics.RecordTaskPanic(w.index, r)
			w.panicHandler.HandlePanic(w.index, r, debug.Stack())
		}
		if w.timed {
			w.metrics.RecordTaskDuration(w.index, time.Since(start))
		}
	}()
	t.fn(t)
}

// loop is the body of a background worker.
func (w *Worker) loop() {
	if w.graph.pinThreads {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	w.threadID.Store(currentThreadID())
	w.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))
	w.logger.Debug("worker started", F("worker", w.index), F("thread", w.ThreadID()))

	for w.State() == StateRunning {
		if t := w.fetchTask(); t != nil {
			w.execute(t)
		} else {
			runtime.Gosched()
		}
	}

	w.state.Store(int32(StateIdle))
	w.logger.Debug("worker stopped", F("worker", w.index), F("completed", w.completed.Load()))
}

// stop asks the loop to exit after its current task. It does not wait.
func (w *Worker) stop() {
	w.state.Store(int32(StateStopping))
}

// drain runs everything still reachable from this worker until no queue
// yields work. Used by the foreground worker once all loops have joined.
func (w *Worker) drain() int {
	n := 0
	for {
		t := w.fetchTask()
		if t == nil {
			return n
		}
		w.execute(t)
		n++
	}
}

func (w *Worker) acquireOwner(op string) {
	if !w.owner.CompareAndSwap(false, true) {
		violation(op, "worker %d deque used by two goroutines at once", w.index)
	}
}

func (w *Worker) releaseOwner() {
	w.owner.Store(false)
}

type warnCategory struct {
	worker int
	msg    string
}

func (w *Worker) warn(msg string, fields ...Field) {
	if _, ok := w.graph.limiter.Allow(warnCategory{worker: w.index, msg: msg}); ok {
		w.logger.Warn(msg, fields...)
	}
}
