package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Swind/go-task-graph/core"
	"github.com/urfave/cli/v2"
)

func FibCommand() *cli.Command {
	return &cli.Command{
		Name:  "fib",
		Usage: "Compute a Fibonacci number with recursive fork-join",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "n",
				Value: 25,
				Usage: "Which Fibonacci number to compute",
			},
			&cli.IntFlag{
				Name:  "cutoff",
				Value: 12,
				Usage: "Below this n compute serially inside one task",
			},
		},

		Action: FibAction,
	}
}

func FibAction(c *cli.Context) error {
	n, cutoff := c.Int("n"), c.Int("cutoff")
	if n < 0 || n > 90 {
		return cli.Exit("n must be between 0 and 90", 1)
	}

	s, err := newSession(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	start := time.Now()
	result, failures, err := parallelFib(s.graph, n, cutoff)
	elapsed := time.Since(start)
	s.logStats()
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	if failures > 0 {
		return cli.Exit(fmt.Sprintf("%d spawns failed; raise --pool-capacity or --cutoff", failures), 1)
	}

	fmt.Fprintf(c.App.Writer, "✓ fib(%d) = %d in %v\n", n, result, elapsed)
	return nil
}

func parallelFib(g *core.Graph, n, cutoff int) (int64, int32, error) {
	var result int64
	var failures atomic.Int32
	root, err := g.Add(func(t *core.Task) { fibTask(t, n, cutoff, &result, &failures) })
	if err != nil {
		return 0, 0, err
	}
	g.Wait(root)
	return result, failures.Load(), nil
}

// fibTask writes fib(n) to out once t and its subtree have finished.
func fibTask(t *core.Task, n, cutoff int, out *int64, failures *atomic.Int32) {
	if n < 2 || n <= cutoff {
		*out = serialFib(n)
		return
	}
	var a, b int64
	t.SetTeardown(func(*core.Task) { *out = a + b })
	if _, err := t.Spawn(func(c *core.Task) { fibTask(c, n-1, cutoff, &a, failures) }); err != nil {
		failures.Add(1)
	}
	if _, err := t.Spawn(func(c *core.Task) { fibTask(c, n-2, cutoff, &b, failures) }); err != nil {
		failures.Add(1)
	}
}

func serialFib(n int) int64 {
	a, b := int64(0), int64(1)
	for i := 0; i < n; i++ {
		a, b = a+b, a
	}
	return a
}
