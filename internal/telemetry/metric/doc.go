// Package metric exposes restore point metrics in Prometheus format.
//
//   - prometheus.go: the Registry, which implements service.Metrics, and
//     the /metrics handler
//   - collector.go: a scrape-time collector counting stored blobs
package metric
