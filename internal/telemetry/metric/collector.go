package metric

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/restorepoint-go/internal/storage"
)

// StorageCollector reports the number of stored blobs by kind. Keys are
// counted at scrape time.
type StorageCollector struct {
	backend storage.Backend
	timeout time.Duration
	logger  *slog.Logger
	blobs   *prometheus.Desc
}

// NewStorageCollector creates a collector over backend.
func NewStorageCollector(backend storage.Backend, logger *slog.Logger) *StorageCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageCollector{
		backend: backend,
		timeout: 5 * time.Second,
		logger:  logger,
		blobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "stored_blobs"),
			"Blobs currently stored by kind",
			[]string{"kind"},
			prometheus.Labels{"backend": backend.Kind()},
		),
	}
}

// Describe implements prometheus.Collector.
func (c *StorageCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.blobs
}

// Collect implements prometheus.Collector. A kind whose keys cannot be
// listed is left out of the scrape.
func (c *StorageCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for kind, seq := range map[string]*storage.KeySeq{
		"project": c.backend.ProjectKeys(ctx),
		"asset":   c.backend.AssetKeys(ctx),
	} {
		n := 0
		for range seq.All() {
			n++
		}
		if err := seq.Err(); err != nil {
			c.logger.Warn("count stored blobs failed", "kind", kind, "error", err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.blobs, prometheus.GaugeValue, float64(n), kind)
	}
}
