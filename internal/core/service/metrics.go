package service

import "time"

// Metrics receives restore point measurements.
// metric.Registry implements it; a nil Metrics in a config records nothing.
type Metrics interface {
	// ObserveCreate records one create attempt of the given type.
	ObserveCreate(typ string, elapsed time.Duration, err error)

	// GCDeleted adds n blobs of kind ("project", "asset") removed by GC.
	GCDeleted(kind string, n int)

	// GCFailed counts one failed sweep of kind.
	GCFailed(kind string)

	// ManifestEntries reports the current manifest length.
	ManifestEntries(n int)

	// SchedulerState reports the scheduler state as a number.
	SchedulerState(state int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCreate(string, time.Duration, error) {}
func (nopMetrics) GCDeleted(string, int)                      {}
func (nopMetrics) GCFailed(string)                            {}
func (nopMetrics) ManifestEntries(int)                        {}
func (nopMetrics) SchedulerState(int)                         {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
