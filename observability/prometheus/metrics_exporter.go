package prometheus

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Swind/go-task-graph/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every collector when no namespace is given.
const DefaultNamespace = "taskgraph"

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
// Worker indices are exported as the "worker" label.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	stealTotal          *prom.CounterVec
	poolExhaustedTotal  *prom.CounterVec
	queueFullTotal      *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		// task bodies are expected to be short; start at 1µs
		buckets = prom.ExponentialBuckets(1e-6, 4, 12)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task body execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"worker"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"worker"})
	stealVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "steal_total",
		Help:      "Total number of tasks stolen, by thief and victim worker.",
	}, []string{"thief", "victim"})
	exhaustedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "pool_exhausted_total",
		Help:      "Total number of task allocations that found the pool empty.",
	}, []string{"worker"})
	queueFullVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "queue_full_total",
		Help:      "Total number of pushes rejected by a full deque.",
	}, []string{"worker"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if stealVec, err = registerCollector(reg, stealVec); err != nil {
		return nil, err
	}
	if exhaustedVec, err = registerCollector(reg, exhaustedVec); err != nil {
		return nil, err
	}
	if queueFullVec, err = registerCollector(reg, queueFullVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		stealTotal:          stealVec,
		poolExhaustedTotal:  exhaustedVec,
		queueFullTotal:      queueFullVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(worker int, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(workerLabel(worker)).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(worker int, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(workerLabel(worker)).Inc()
}

// RecordSteal records a successful steal.
func (m *MetricsExporter) RecordSteal(thief, victim int) {
	if m == nil {
		return
	}
	m.stealTotal.WithLabelValues(workerLabel(thief), workerLabel(victim)).Inc()
}

// RecordPoolExhausted records a failed allocation.
func (m *MetricsExporter) RecordPoolExhausted(worker int) {
	if m == nil {
		return
	}
	m.poolExhaustedTotal.WithLabelValues(workerLabel(worker)).Inc()
}

// RecordQueueFull records a rejected push.
func (m *MetricsExporter) RecordQueueFull(worker int) {
	if m == nil {
		return
	}
	m.queueFullTotal.WithLabelValues(workerLabel(worker)).Inc()
}

func workerLabel(worker int) string {
	if worker < 0 {
		return "unknown"
	}
	return strconv.Itoa(worker)
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
