package taskgraph

import "github.com/Swind/go-task-graph/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the taskgraph package for most use cases.

// Task is the schedulable unit handed to every task body
type Task = core.Task

// Func is a task body
type Func = core.Func

// Handle is a weak reference to a task
type Handle = core.Handle

// Graph is the scheduler instance
type Graph = core.Graph

// GraphConfig configures Init
type GraphConfig = core.GraphConfig

// GraphStats is a snapshot of every worker
type GraphStats = core.GraphStats

// Worker owns a task pool and a deque
type Worker = core.Worker

// ChainBuilder builds continuation chains
type ChainBuilder = core.ChainBuilder

// Logger, Field and friends for plugging in logging
type (
	Logger       = core.Logger
	Field        = core.Field
	Metrics      = core.Metrics
	PanicHandler = core.PanicHandler
)

// Errors
var (
	ErrPoolExhausted     = core.ErrPoolExhausted
	ErrQueueFull         = core.ErrQueueFull
	ErrContractViolation = core.ErrContractViolation
	ErrGraphLive         = core.ErrGraphLive
	ErrGraphStopped      = core.ErrGraphStopped
	ErrNotInitialized    = errNotInitialized
)

// Convenience functions
var (
	DefaultGraphConfig  = core.DefaultGraphConfig
	IsContractViolation = core.IsContractViolation
	F                   = core.F
)

// PayloadSize is the inline data capacity of a task
const PayloadSize = core.PayloadSize

// AddWith creates and submits a root task carrying data on the foreground worker.
func AddWith[D any](data D, fn func(t *Task, data *D)) (Handle, error) {
	return core.AddWith(Get().Foreground(), Handle{}, data, fn)
}

// SpawnWith creates a typed child of t and submits it.
func SpawnWith[D any](t *Task, data D, fn func(t *Task, data *D)) (Handle, error) {
	return core.SpawnWith(t, data, fn)
}

// Data returns the typed data of t.
func Data[D any](t *Task) *D {
	return core.Data[D](t)
}
