package core

// WorkerStats is a point-in-time view of one worker. All counts are advisory:
// they are read without stopping the worker.
type WorkerStats struct {
	Index        int
	Mode         WorkerMode
	State        WorkerState
	ThreadID     int64
	Completed    uint64
	Stolen       uint64
	Queued       int
	PoolFree     int
	PoolCapacity int
}

// GraphStats aggregates WorkerStats across the graph.
type GraphStats struct {
	Workers      []WorkerStats
	Running      bool
	Completed    uint64
	PoolFree     int
	PoolCapacity int
}

// Idle reports whether every pool slot is free, i.e. no task is alive.
func (s GraphStats) Idle() bool {
	return s.PoolFree == s.PoolCapacity
}
