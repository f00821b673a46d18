package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "restorepoint"

// Registry holds the restore point metrics and the Prometheus registry
// they are registered with.
type Registry struct {
	reg *prometheus.Registry

	creates         *prometheus.CounterVec
	createDuration  *prometheus.HistogramVec
	gcDeleted       *prometheus.CounterVec
	gcFailures      *prometheus.CounterVec
	manifestEntries prometheus.Gauge
	schedulerState  prometheus.Gauge
}

// NewRegistry creates a registry with the restore point metrics and the
// Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		creates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "creates_total",
			Help:      "Restore point create attempts by type and status",
		}, []string{"type", "status"}),
		createDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "create_duration_seconds",
			Help:      "Time spent writing a restore point",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"type"}),
		gcDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_deleted_total",
			Help:      "Orphaned blobs removed by garbage collection",
		}, []string{"kind"}),
		gcFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_failures_total",
			Help:      "Garbage collection sweeps that stopped on an error",
		}, []string{"kind"}),
		manifestEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manifest_entries",
			Help:      "Restore points in the manifest",
		}),
		schedulerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_state",
			Help:      "Automatic save state: 0 idle, 1 pending, 2 creating",
		}),
	}
	r.reg.MustRegister(
		r.creates,
		r.createDuration,
		r.gcDeleted,
		r.gcFailures,
		r.manifestEntries,
		r.schedulerState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// Registerer returns the underlying registerer for components that bring
// their own collectors.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler returns the /metrics handler for r.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Handler returns the /metrics handler for the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// ObserveCreate records one create attempt.
func (r *Registry) ObserveCreate(typ string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.creates.WithLabelValues(typ, status).Inc()
	r.createDuration.WithLabelValues(typ).Observe(elapsed.Seconds())
}

// GCDeleted adds n removed blobs of kind.
func (r *Registry) GCDeleted(kind string, n int) {
	r.gcDeleted.WithLabelValues(kind).Add(float64(n))
}

// GCFailed counts a failed sweep of kind.
func (r *Registry) GCFailed(kind string) {
	r.gcFailures.WithLabelValues(kind).Inc()
}

// ManifestEntries sets the manifest length.
func (r *Registry) ManifestEntries(n int) {
	r.manifestEntries.Set(float64(n))
}

// SchedulerState sets the scheduler state.
func (r *Registry) SchedulerState(state int) {
	r.schedulerState.Set(float64(state))
}
