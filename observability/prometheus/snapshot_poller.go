package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-task-graph/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// GraphSnapshotProvider provides current graph stats snapshots. *core.Graph
// satisfies it.
type GraphSnapshotProvider interface {
	Stats() core.GraphStats
}

// SnapshotPoller periodically exports graph Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	graphsMu sync.RWMutex
	graphs   map[string]GraphSnapshotProvider

	workerQueued    *prom.GaugeVec
	workerPoolFree  *prom.GaugeVec
	workerPoolCap   *prom.GaugeVec
	workerCompleted *prom.GaugeVec
	workerStolen    *prom.GaugeVec
	workerState     *prom.GaugeVec

	graphRunning  *prom.GaugeVec
	graphPoolFree *prom.GaugeVec
	graphWorkers  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	workerLabels := []string{"graph", "worker", "mode"}
	workerQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "worker_queued",
		Help:      "Tasks waiting in each worker's deque.",
	}, workerLabels)
	workerPoolFree := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "worker_pool_free",
		Help:      "Free task slots per worker pool.",
	}, workerLabels)
	workerPoolCap := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "worker_pool_capacity",
		Help:      "Task slot capacity per worker pool.",
	}, workerLabels)
	workerCompleted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "worker_completed_tasks",
		Help:      "Tasks run per worker snapshot.",
	}, workerLabels)
	workerStolen := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "worker_stolen_tasks",
		Help:      "Tasks stolen by each worker snapshot.",
	}, workerLabels)
	workerState := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "worker_state",
		Help:      "Worker loop state (0=idle, 1=running, 2=stopping).",
	}, workerLabels)

	graphRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "graph_running",
		Help:      "Graph running state (1=running, 0=stopped).",
	}, []string{"graph"})
	graphPoolFree := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "graph_pool_free",
		Help:      "Free task slots across all workers.",
	}, []string{"graph"})
	graphWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: DefaultNamespace,
		Name:      "graph_workers",
		Help:      "Worker count per graph.",
	}, []string{"graph"})

	var err error
	if workerQueued, err = registerCollector(reg, workerQueued); err != nil {
		return nil, err
	}
	if workerPoolFree, err = registerCollector(reg, workerPoolFree); err != nil {
		return nil, err
	}
	if workerPoolCap, err = registerCollector(reg, workerPoolCap); err != nil {
		return nil, err
	}
	if workerCompleted, err = registerCollector(reg, workerCompleted); err != nil {
		return nil, err
	}
	if workerStolen, err = registerCollector(reg, workerStolen); err != nil {
		return nil, err
	}
	if workerState, err = registerCollector(reg, workerState); err != nil {
		return nil, err
	}
	if graphRunning, err = registerCollector(reg, graphRunning); err != nil {
		return nil, err
	}
	if graphPoolFree, err = registerCollector(reg, graphPoolFree); err != nil {
		return nil, err
	}
	if graphWorkers, err = registerCollector(reg, graphWorkers); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:        interval,
		graphs:          make(map[string]GraphSnapshotProvider),
		workerQueued:    workerQueued,
		workerPoolFree:  workerPoolFree,
		workerPoolCap:   workerPoolCap,
		workerCompleted: workerCompleted,
		workerStolen:    workerStolen,
		workerState:     workerState,
		graphRunning:    graphRunning,
		graphPoolFree:   graphPoolFree,
		graphWorkers:    graphWorkers,
	}, nil
}

// AddGraph adds or replaces a graph snapshot provider by name.
func (p *SnapshotPoller) AddGraph(name string, provider GraphSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "graph")
	p.graphsMu.Lock()
	p.graphs[name] = provider
	p.graphsMu.Unlock()
}

// RemoveGraph stops exporting the named graph and deletes its series.
func (p *SnapshotPoller) RemoveGraph(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "graph")
	p.graphsMu.Lock()
	delete(p.graphs, name)
	p.graphsMu.Unlock()

	match := prom.Labels{"graph": name}
	for _, vec := range []*prom.GaugeVec{
		p.workerQueued, p.workerPoolFree, p.workerPoolCap,
		p.workerCompleted, p.workerStolen, p.workerState,
		p.graphRunning, p.graphPoolFree, p.graphWorkers,
	} {
		vec.DeletePartialMatch(match)
	}
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.graphsMu.RLock()
	defer p.graphsMu.RUnlock()

	for name, provider := range p.graphs {
		stats := provider.Stats()
		for _, ws := range stats.Workers {
			labels := []string{name, workerLabel(ws.Index), ws.Mode.String()}
			p.workerQueued.WithLabelValues(labels...).Set(float64(ws.Queued))
			p.workerPoolFree.WithLabelValues(labels...).Set(float64(ws.PoolFree))
			p.workerPoolCap.WithLabelValues(labels...).Set(float64(ws.PoolCapacity))
			p.workerCompleted.WithLabelValues(labels...).Set(float64(ws.Completed))
			p.workerStolen.WithLabelValues(labels...).Set(float64(ws.Stolen))
			p.workerState.WithLabelValues(labels...).Set(float64(ws.State))
		}
		if stats.Running {
			p.graphRunning.WithLabelValues(name).Set(1)
		} else {
			p.graphRunning.WithLabelValues(name).Set(0)
		}
		p.graphPoolFree.WithLabelValues(name).Set(float64(stats.PoolFree))
		p.graphWorkers.WithLabelValues(name).Set(float64(len(stats.Workers)))
	}
}
