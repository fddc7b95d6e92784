package core

import (
	"fmt"
	"runtime"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task body panics. The task still finishes, so
// its parent and continuation are not stranded.
//
// Implementations should be thread-safe as they are called from every worker.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - workerID: Index of the worker that ran the task (0 is the foreground worker)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d] Panic: %v\nStack trace:\n%s", workerID, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (see
// observability/prometheus).
//
// Methods are called on the scheduling hot path and must be non-blocking.
// Task durations are only measured when the configured Metrics is not
// NilMetrics.
type Metrics interface {
	// RecordTaskDuration records how long a task body took to execute.
	RecordTaskDuration(worker int, duration time.Duration)

	// RecordTaskPanic records that a task body panicked.
	RecordTaskPanic(worker int, panicInfo any)

	// RecordSteal records that thief took a task from victim's deque.
	RecordSteal(thief, victim int)

	// RecordPoolExhausted records a failed task allocation.
	RecordPoolExhausted(worker int)

	// RecordQueueFull records a push rejected by a full deque.
	RecordQueueFull(worker int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(worker int, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(worker int, panicInfo any)             {}
func (m *NilMetrics) RecordSteal(thief, victim int)                         {}
func (m *NilMetrics) RecordPoolExhausted(worker int)                        {}
func (m *NilMetrics) RecordQueueFull(worker int)                            {}

// =============================================================================
// GraphConfig: Configuration for Graph
// =============================================================================

const (
	// DefaultPoolCapacity is the number of task slots per worker.
	DefaultPoolCapacity = 4096

	// DefaultQueueCapacity is the deque size per worker.
	DefaultQueueCapacity = 4096
)

// GraphConfig holds configuration options for NewGraph.
// Zero values and nil handlers are replaced with defaults.
type GraphConfig struct {
	// Workers is the total worker count including the foreground worker.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int

	// PoolCapacity is the number of task slots each worker owns.
	PoolCapacity int

	// QueueCapacity is the deque size of each worker, rounded up to a power of two.
	QueueCapacity int

	// PinThreads locks every background worker to its own OS thread.
	PinThreads bool

	// Logger defaults to NoOpLogger.
	Logger Logger

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// WarnRates limits how often each worker logs pool exhaustion and full
	// queues, as window -> max events. Defaults to 1/second and 10/minute.
	WarnRates map[time.Duration]int
}

// DefaultGraphConfig returns a config with default handlers.
func DefaultGraphConfig() *GraphConfig {
	return &GraphConfig{
		Workers:       runtime.GOMAXPROCS(0),
		PoolCapacity:  DefaultPoolCapacity,
		QueueCapacity: DefaultQueueCapacity,
		Logger:        &NoOpLogger{},
		Metrics:       &NilMetrics{},
		PanicHandler:  &DefaultPanicHandler{},
		WarnRates:     defaultWarnRates(),
	}
}

func defaultWarnRates() map[time.Duration]int {
	return map[time.Duration]int{
		time.Second: 1,
		time.Minute: 10,
	}
}

// withDefaults returns a copy of cfg with every unset field filled in.
func (cfg *GraphConfig) withDefaults() (*GraphConfig, error) {
	out := DefaultGraphConfig()
	if cfg == nil {
		return out, nil
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkerCount, cfg.Workers)
	}
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if cfg.PoolCapacity > 0 {
		out.PoolCapacity = cfg.PoolCapacity
	}
	if cfg.QueueCapacity > 0 {
		out.QueueCapacity = cfg.QueueCapacity
	}
	out.PinThreads = cfg.PinThreads
	if cfg.Logger != nil {
		out.Logger = cfg.Logger
	}
	if cfg.Metrics != nil {
		out.Metrics = cfg.Metrics
	}
	if cfg.PanicHandler != nil {
		out.PanicHandler = cfg.PanicHandler
	}
	if len(cfg.WarnRates) > 0 {
		out.WarnRates = cfg.WarnRates
	}
	return out, nil
}
