package core

import (
	"sync/atomic"

	catrate "github.com/joeycumines/go-catrate"
	"golang.org/x/sync/errgroup"
)

// live guards the one-graph-per-process rule.
var live atomic.Bool

// Graph is a running scheduler: one foreground worker driven by the goroutine
// that created it, plus background workers that each run a scheduling loop.
//
// Only one graph may be live at a time. Create, Add, Chain, Submit and Wait
// act on the foreground worker and must be called from the creating goroutine.
type Graph struct {
	workers    []*Worker
	pinThreads bool
	running    atomic.Bool
	group      errgroup.Group
	limiter    *catrate.Limiter
	logger     Logger
}

// NewGraph validates cfg, allocates every worker's pool and deque and starts
// the background loops. It fails with ErrGraphLive while another graph has not
// been shut down.
func NewGraph(cfg *GraphConfig) (*Graph, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if !live.CompareAndSwap(false, true) {
		return nil, ErrGraphLive
	}

	g := &Graph{
		pinThreads: cfg.PinThreads,
		limiter:    catrate.NewLimiter(cfg.WarnRates),
		logger:     cfg.Logger,
	}
	g.workers = make([]*Worker, cfg.Workers)
	for i := range g.workers {
		mode := ModeBackground
		if i == 0 {
			mode = ModeForeground
		}
		w, err := newWorker(g, i, mode, cfg)
		if err != nil {
			live.Store(false)
			return nil, err
		}
		g.workers[i] = w
	}

	fg := g.workers[0]
	fg.threadID.Store(currentThreadID())
	for _, w := range g.workers[1:] {
		// marked running before the goroutine starts so a quick Shutdown
		// cannot be overtaken by the loop's own transition
		w.state.Store(int32(StateRunning))
		g.group.Go(func() error {
			w.loop()
			return nil
		})
	}
	g.running.Store(true)

	g.logger.Info("graph started",
		F("workers", cfg.Workers),
		F("pool_capacity", cfg.PoolCapacity),
		F("queue_capacity", fg.queue.Capacity()),
		F("pin_threads", cfg.PinThreads))
	return g, nil
}

// Shutdown stops every background loop, waits for them to exit, then drains
// whatever is still queued on the calling goroutine so that all slots return
// to their pools. It must be called from the goroutine that created the graph.
func (g *Graph) Shutdown() error {
	if !g.running.CompareAndSwap(true, false) {
		return ErrGraphStopped
	}
	for _, w := range g.workers[1:] {
		w.stop()
	}
	err := g.group.Wait()

	drained := g.workers[0].drain()
	stats := g.Stats()
	g.logger.Info("graph stopped",
		F("drained", drained),
		F("completed", stats.Completed),
		F("pool_free", stats.PoolFree),
		F("pool_capacity", stats.PoolCapacity))

	live.Store(false)
	return err
}

// IsRunning reports whether Shutdown has not been called yet.
func (g *Graph) IsRunning() bool {
	return g.running.Load()
}

// Foreground returns the worker driven by the creating goroutine.
func (g *Graph) Foreground() *Worker {
	return g.workers[0]
}

// Workers returns all workers; index 0 is the foreground worker.
func (g *Graph) Workers() []*Worker {
	return append([]*Worker(nil), g.workers...)
}

// Worker returns the worker at index i.
func (g *Graph) Worker(i int) *Worker {
	return g.workers[i]
}

// NumWorkers returns the total worker count.
func (g *Graph) NumWorkers() int {
	return len(g.workers)
}

// Create allocates a root task on the foreground worker.
func (g *Graph) Create(fn Func) (Handle, error) {
	return g.Foreground().Create(fn)
}

// CreateChild allocates a task under parent on the foreground worker.
func (g *Graph) CreateChild(parent Handle, fn Func) (Handle, error) {
	return g.Foreground().CreateChild(parent, fn)
}

// Add creates and submits a root task on the foreground worker.
func (g *Graph) Add(fn Func) (Handle, error) {
	return g.Foreground().Add(fn)
}

// AddChild creates and submits a task under parent on the foreground worker.
func (g *Graph) AddChild(parent Handle, fn Func) (Handle, error) {
	return g.Foreground().AddChild(parent, fn)
}

// Submit submits a task created on the foreground worker.
func (g *Graph) Submit(h Handle) error {
	return g.Foreground().Submit(h)
}

// Chain starts a continuation chain on the foreground worker.
func (g *Graph) Chain() *ChainBuilder {
	return g.Foreground().Chain()
}

// ChainUnder starts a continuation chain under parent on the foreground worker.
func (g *Graph) ChainUnder(parent Handle) *ChainBuilder {
	return g.Foreground().ChainUnder(parent)
}

// Wait runs work on the calling goroutine until h has finished.
func (g *Graph) Wait(h Handle) {
	g.Foreground().Wait(h)
}

// Stats returns a snapshot of every worker.
func (g *Graph) Stats() GraphStats {
	s := GraphStats{
		Workers: make([]WorkerStats, len(g.workers)),
		Running: g.running.Load(),
	}
	for i, w := range g.workers {
		ws := w.Stats()
		s.Workers[i] = ws
		s.Completed += ws.Completed
		s.PoolFree += ws.PoolFree
		s.PoolCapacity += ws.PoolCapacity
	}
	return s
}
