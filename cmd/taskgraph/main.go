// Command taskgraph runs fork-join workloads on the scheduler and optionally
// exposes its Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "taskgraph",
		Usage: "Run fork-join workloads on the work-stealing scheduler",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			RunCommand(),
			FibCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
