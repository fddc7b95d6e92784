package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/Swind/go-task-graph/core"
	"github.com/Swind/go-task-graph/logging"
	obs "github.com/Swind/go-task-graph/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			EnvVars: []string{"TASKGRAPH_WORKERS"},
			Usage:   "Total workers including the foreground one (0 = GOMAXPROCS)",
		},
		&cli.IntFlag{
			Name:    "pool-capacity",
			EnvVars: []string{"TASKGRAPH_POOL_CAPACITY"},
			Value:   core.DefaultPoolCapacity,
			Usage:   "Task slots per worker",
		},
		&cli.IntFlag{
			Name:    "queue-capacity",
			EnvVars: []string{"TASKGRAPH_QUEUE_CAPACITY"},
			Value:   core.DefaultQueueCapacity,
			Usage:   "Deque size per worker",
		},
		&cli.BoolFlag{
			Name:    "pin-threads",
			EnvVars: []string{"TASKGRAPH_PIN_THREADS"},
			Usage:   "Lock each background worker to an OS thread",
		},
		&cli.StringFlag{
			Name:    "log-level",
			EnvVars: []string{"TASKGRAPH_LOG_LEVEL"},
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			EnvVars: []string{"TASKGRAPH_METRICS_ADDR"},
			Usage:   "Serve Prometheus metrics on this address, e.g. :2112",
		},
		&cli.DurationFlag{
			Name:  "metrics-linger",
			Value: 0,
			Usage: "Keep the metrics endpoint up this long after the workload",
		},
	}
}

// session is one graph plus its optional metrics endpoint.
type session struct {
	graph  *core.Graph
	log    zerolog.Logger
	poller *obs.SnapshotPoller
	server *http.Server
	linger time.Duration
}

func newSession(c *cli.Context) (*session, error) {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, cli.Exit("invalid --log-level: "+err.Error(), 2)
	}
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	cfg := &core.GraphConfig{
		Workers:       c.Int("workers"),
		PoolCapacity:  c.Int("pool-capacity"),
		QueueCapacity: c.Int("queue-capacity"),
		PinThreads:    c.Bool("pin-threads"),
		Logger:        logging.NewZerologLogger(zl),
	}

	s := &session{log: zl, linger: c.Duration("metrics-linger")}
	var reg *prom.Registry
	if addr := c.String("metrics-addr"); addr != "" {
		reg = prom.NewRegistry()
		exporter, err := obs.NewMetricsExporter(obs.DefaultNamespace, reg, obs.ExporterOptions{})
		if err != nil {
			return nil, err
		}
		cfg.Metrics = exporter

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		s.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	g, err := core.NewGraph(cfg)
	if err != nil {
		return nil, err
	}
	s.graph = g

	if reg != nil {
		poller, err := obs.NewSnapshotPoller(reg, 250*time.Millisecond)
		if err != nil {
			_ = g.Shutdown()
			return nil, err
		}
		poller.AddGraph("main", g)
		poller.Start(c.Context)
		s.poller = poller

		go func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zl.Error().Err(err).Str("addr", s.server.Addr).Msg("metrics server failed")
			}
		}()
		zl.Info().Str("addr", s.server.Addr).Msg("serving metrics")
	}
	return s, nil
}

// Close shuts the graph down and stops the metrics endpoint. It must be called
// from the goroutine that created the session.
func (s *session) Close() error {
	if s.server != nil && s.linger > 0 {
		s.log.Info().Dur("linger", s.linger).Msg("keeping metrics endpoint up")
		time.Sleep(s.linger)
	}
	err := s.graph.Shutdown()
	if s.poller != nil {
		s.poller.Stop()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	}
	return err
}

func (s *session) logStats() {
	stats := s.graph.Stats()
	for _, w := range stats.Workers {
		s.log.Info().
			Int("worker", w.Index).
			Str("mode", w.Mode.String()).
			Int64("thread", w.ThreadID).
			Uint64("completed", w.Completed).
			Uint64("stolen", w.Stolen).
			Int("pool_free", w.PoolFree).
			Int("pool_capacity", w.PoolCapacity).
			Msg("worker stats")
	}
}
