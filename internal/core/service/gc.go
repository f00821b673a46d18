package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
)

// Blob kinds swept by the garbage collector.
const (
	KindProject = "project"
	KindAsset   = "asset"
)

// GCStats reports what one collection removed.
type GCStats struct {
	ProjectsDeleted int
	AssetsDeleted   int
}

// GarbageCollector deletes blobs that the committed manifest does not
// reference.
type GarbageCollector struct {
	backend storage.Backend
	logger  *slog.Logger
	metrics Metrics
}

// NewGarbageCollector creates a collector over backend.
func NewGarbageCollector(backend storage.Backend, logger *slog.Logger, metrics Metrics) *GarbageCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &GarbageCollector{
		backend: backend,
		logger:  logger,
		metrics: metricsOrNop(metrics),
	}
}

// Collect sweeps project blobs and asset blobs against committed, which must
// be the manifest most recently written to the backend.
//
// The sweeps are independent: a failing sweep stops at its first error and is
// logged, and the other sweep still runs. The joined sweep errors are
// returned for callers that want them.
func (gc *GarbageCollector) Collect(ctx context.Context, committed domain.Manifest) (GCStats, error) {
	var stats GCStats

	projects, perr := gc.sweep(ctx, KindProject, gc.backend.ProjectKeys(ctx), committed.IDs(), gc.backend.DeleteProject)
	stats.ProjectsDeleted = projects

	assets, aerr := gc.sweep(ctx, KindAsset, gc.backend.AssetKeys(ctx), committed.AssetRefs(), gc.backend.DeleteAsset)
	stats.AssetsDeleted = assets

	if stats.ProjectsDeleted > 0 || stats.AssetsDeleted > 0 {
		gc.logger.Debug("restore point gc completed",
			"projects_deleted", stats.ProjectsDeleted,
			"assets_deleted", stats.AssetsDeleted)
	}
	return stats, errors.Join(perr, aerr)
}

func (gc *GarbageCollector) sweep(
	ctx context.Context,
	kind string,
	keys *storage.KeySeq,
	required map[string]struct{},
	del func(context.Context, string) error,
) (int, error) {
	// Enumerate fully before deleting so deletes never race the listing.
	var orphans []string
	for key := range keys.All() {
		if _, ok := required[key]; !ok {
			orphans = append(orphans, key)
		}
	}
	if err := keys.Err(); err != nil {
		return 0, gc.fail(kind, fmt.Errorf("list %s blobs: %w", kind, err))
	}

	deleted := 0
	for _, key := range orphans {
		if err := del(ctx, key); err != nil {
			gc.metrics.GCDeleted(kind, deleted)
			return deleted, gc.fail(kind, fmt.Errorf("delete %s blob %s: %w", kind, key, err))
		}
		deleted++
	}
	gc.metrics.GCDeleted(kind, deleted)
	return deleted, nil
}

func (gc *GarbageCollector) fail(kind string, err error) error {
	gc.metrics.GCFailed(kind)
	gc.logger.Warn("restore point gc sweep failed", "kind", kind, "error", err)
	return err
}
