// Package taskgraph is a fork-join task scheduler with per-worker lock-free
// task pools and work-stealing deques.
//
// Tasks are small callbacks allocated from fixed-capacity pools. A task may
// spawn children, and it completes only once its own body and every child have
// finished. Chains run tasks one after another, each after the previous one's
// whole subtree. Background workers execute tasks from their own deque and
// steal from the others when idle; the goroutine that initialized the graph
// joins in while it waits.
//
// # Quick Start
//
// Initialize the graph at application startup, from the goroutine that will
// wait on it:
//
//	if err := taskgraph.Init(nil); err != nil { // GOMAXPROCS workers
//		log.Fatal(err)
//	}
//	defer taskgraph.Shutdown()
//
// Fan out and wait:
//
//	root, err := taskgraph.Add(func(t *taskgraph.Task) {
//		for i := 0; i < 100; i++ {
//			t.Spawn(func(*taskgraph.Task) { work(i) })
//		}
//	})
//	if err != nil {
//		// pool exhausted or queue full
//	}
//	taskgraph.Wait(root)
//
// # Key Concepts
//
// Handle: a weak, generation-checked reference to a task. It turns invalid the
// moment the task finishes and its slot is recycled; Wait polls for exactly that.
//
// Capacity: every worker owns a fixed number of task slots (GraphConfig.PoolCapacity).
// Running out is not an error condition to hide: Create, Add, Spawn and
// ChainBuilder.Submit all return ErrPoolExhausted.
//
// Contract violations: submitting a task twice, using a stale handle, or
// waiting from a background worker panic with an error wrapping
// ErrContractViolation.
//
// # Example
//
//	import taskgraph "github.com/Swind/go-task-graph"
//
//	func main() {
//		_ = taskgraph.Init(&taskgraph.GraphConfig{Workers: 4})
//		defer taskgraph.Shutdown()
//
//		h, _ := taskgraph.Chain().
//			Add(func(*taskgraph.Task) { println("load") }).
//			Add(func(*taskgraph.Task) { println("transform") }).
//			Add(func(*taskgraph.Task) { println("store") }).
//			Submit()
//		taskgraph.Wait(h)
//	}
package taskgraph
