package taskgraph

import (
	"errors"
	"sync"

	"github.com/Swind/go-task-graph/core"
)

// =============================================================================
// Global Graph Helper (Singleton)
// =============================================================================

var errNotInitialized = errors.New("taskgraph: graph not initialized")

var (
	globalGraph *core.Graph
	globalMu    sync.Mutex
)

// Init creates and starts the process-wide graph. The calling goroutine becomes
// its foreground worker and is the only one allowed to call Wait, Create, Add,
// Chain and Shutdown. Calling Init again before Shutdown returns ErrGraphLive.
func Init(cfg *GraphConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalGraph != nil {
		return ErrGraphLive
	}
	g, err := core.NewGraph(cfg)
	if err != nil {
		return err
	}
	globalGraph = g
	return nil
}

// Get returns the process-wide graph.
// It panics if Init has not been called.
func Get() *Graph {
	g, err := current()
	if err != nil {
		panic("taskgraph: graph not initialized. Call Init() first.")
	}
	return g
}

// Initialized reports whether Init has been called without a matching Shutdown.
func Initialized() bool {
	_, err := current()
	return err == nil
}

func current() (*Graph, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalGraph == nil {
		return nil, errNotInitialized
	}
	return globalGraph, nil
}

// Shutdown stops the process-wide graph, draining queued work on the calling
// goroutine. It returns ErrNotInitialized if there is no graph.
func Shutdown() error {
	globalMu.Lock()
	g := globalGraph
	globalGraph = nil
	globalMu.Unlock()

	if g == nil {
		return errNotInitialized
	}
	return g.Shutdown()
}

// Create allocates a root task without submitting it.
func Create(fn Func) (Handle, error) {
	return Get().Create(fn)
}

// CreateChild allocates a task under parent without submitting it.
func CreateChild(parent Handle, fn Func) (Handle, error) {
	return Get().CreateChild(parent, fn)
}

// Add creates and submits a root task.
func Add(fn Func) (Handle, error) {
	return Get().Add(fn)
}

// AddChild creates and submits a task under parent.
func AddChild(parent Handle, fn Func) (Handle, error) {
	return Get().AddChild(parent, fn)
}

// Submit submits a task obtained from Create or CreateChild.
func Submit(h Handle) error {
	return Get().Submit(h)
}

// Discard releases a created task that was never submitted.
func Discard(h Handle) {
	Get().Foreground().Discard(h)
}

// Chain starts a continuation chain.
func Chain() *ChainBuilder {
	return Get().Chain()
}

// ChainUnder starts a continuation chain whose wrapper is a child of parent.
func ChainUnder(parent Handle) *ChainBuilder {
	return Get().ChainUnder(parent)
}

// Wait runs work on the calling goroutine until h has finished.
func Wait(h Handle) {
	Get().Wait(h)
}

// Stats returns a snapshot of the process-wide graph.
func Stats() GraphStats {
	return Get().Stats()
}
