package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Swind/go-task-graph/core"
	"github.com/urfave/cli/v2"
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a multi-stage chain whose last stage fans out into leaf tasks",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "stages",
				Aliases: []string{"s"},
				Value:   4,
				Usage:   "Number of chained stages",
			},
			&cli.IntFlag{
				Name:    "leaves",
				Aliases: []string{"l"},
				Value:   1000,
				Usage:   "Leaf tasks spawned by the last stage",
			},
			&cli.DurationFlag{
				Name:  "leaf-work",
				Usage: "Simulated work per leaf",
			},
		},

		Action: RunAction,
	}
}

type runResult struct {
	stages   int32
	leaves   int32
	failures int32
	elapsed  time.Duration
	idle     bool
}

func RunAction(c *cli.Context) error {
	// 1. Get flags
	stages, leaves := c.Int("stages"), c.Int("leaves")
	work := c.Duration("leaf-work")

	// 2. Validate (format only)
	if stages < 1 {
		return cli.Exit("stages must be at least 1", 1)
	}
	if leaves < 0 {
		return cli.Exit("leaves must not be negative", 1)
	}

	// 3. Run the workload
	s, err := newSession(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	res, err := runChain(s.graph, stages, leaves, work)
	if err != nil {
		_ = s.Close()
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	s.logStats()
	if err := s.Close(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	// 4. Format output
	fmt.Fprintf(c.App.Writer, "✓ %d stages, %d/%d leaves in %v (spawn failures: %d, pools idle: %t)\n",
		res.stages, res.leaves, leaves, res.elapsed, res.failures, res.idle)
	if res.failures > 0 {
		return cli.Exit("some leaves could not be spawned; raise --pool-capacity or --queue-capacity", 1)
	}
	return nil
}

func runChain(g *core.Graph, stages, leaves int, work time.Duration) (runResult, error) {
	var stageRuns, leafRuns, failures atomic.Int32
	start := time.Now()

	b := g.Chain()
	for i := 0; i < stages-1; i++ {
		b.Add(func(*core.Task) { stageRuns.Add(1) })
	}
	b.Add(func(t *core.Task) {
		stageRuns.Add(1)
		for j := 0; j < leaves; j++ {
			if _, err := t.Spawn(func(*core.Task) {
				if work > 0 {
					time.Sleep(work)
				}
				leafRuns.Add(1)
			}); err != nil {
				failures.Add(1)
			}
		}
	})
	h, err := b.Submit()
	if err != nil {
		return runResult{}, err
	}
	g.Wait(h)

	return runResult{
		stages:   stageRuns.Load(),
		leaves:   leafRuns.Load(),
		failures: failures.Load(),
		elapsed:  time.Since(start),
		idle:     g.Stats().Idle(),
	}, nil
}
