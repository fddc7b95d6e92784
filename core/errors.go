package core

import (
	"errors"
	"fmt"

	"github.com/Swind/go-task-graph/deque"
	"github.com/Swind/go-task-graph/pool"
)

var (
	// ErrPoolExhausted is returned when a worker's task pool has no free slot.
	// It is an expected, recoverable outcome: back off or run the work inline.
	ErrPoolExhausted = pool.ErrExhausted

	// ErrQueueFull is returned by Submit when the worker's deque is full.
	ErrQueueFull = deque.ErrFull

	// ErrContractViolation marks panics raised for caller bugs, such as
	// submitting a task twice or waiting from a background worker.
	ErrContractViolation = pool.ErrContractViolation

	// ErrGraphLive is returned by NewGraph while another graph is still live.
	ErrGraphLive = errors.New("taskgraph: another graph is already live")

	// ErrGraphStopped is returned by Shutdown on a graph that is not running.
	ErrGraphStopped = errors.New("taskgraph: graph is not running")

	// ErrInvalidWorkerCount is returned by NewGraph for negative worker counts.
	ErrInvalidWorkerCount = errors.New("taskgraph: worker count must not be negative")
)

// IsContractViolation reports whether a recovered panic value signals a
// caller bug rather than a failure inside a task body.
func IsContractViolation(r any) bool {
	err, ok := r.(error)
	return ok && errors.Is(err, ErrContractViolation)
}

func violation(op, format string, args ...any) {
	panic(fmt.Errorf("taskgraph: %s: %w: %s", op, ErrContractViolation, fmt.Sprintf(format, args...)))
}
