package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
)

// MaxTitleLength bounds restore point titles in bytes.
const MaxTitleLength = 1024

// ManifestConfig configures a ManifestManager.
type ManifestConfig struct {
	// MaxRetained is the retention cap. Default: domain.MaxRetained.
	MaxRetained int

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics Metrics
}

// ManifestManager owns the manifest: it sequences the writes of a create so
// that an interruption at any point leaves the store recoverable, enforces
// the retention cap and runs garbage collection after every commit.
//
// ManifestManager does not lock; callers serialize mutations.
type ManifestManager struct {
	backend     storage.Backend
	gc          *GarbageCollector
	maxRetained int
	now         func() time.Time
	logger      *slog.Logger
	metrics     Metrics
}

// NewManifestManager creates a manager over backend.
func NewManifestManager(backend storage.Backend, cfg ManifestConfig) *ManifestManager {
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = domain.MaxRetained
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	metrics := metricsOrNop(cfg.Metrics)
	return &ManifestManager{
		backend:     backend,
		gc:          NewGarbageCollector(backend, cfg.Logger, metrics),
		maxRetained: cfg.MaxRetained,
		now:         cfg.Now,
		logger:      cfg.Logger,
		metrics:     metrics,
	}
}

// MaxRetained returns the retention cap.
func (m *ManifestManager) MaxRetained() int { return m.maxRetained }

// Manifest reads the manifest. A corrupted manifest is logged and read as
// empty; other read failures are returned.
func (m *ManifestManager) Manifest(ctx context.Context) (domain.Manifest, error) {
	manifest, err := m.backend.Manifest(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCorruptedManifest) {
			m.logger.Warn("restore point manifest corrupted, treating as empty", "error", err)
			return domain.Manifest{}, nil
		}
		return nil, err
	}
	m.metrics.ManifestEntries(len(manifest))
	return manifest, nil
}

// Create stores pkg as a new restore point and returns its record.
//
// Write order:
//  1. manifest (with the new record prepended and the tail trimmed)
//  2. main document
//  3. each asset not already stored, in key order, one at a time
//  4. garbage collection against the manifest written in step 1
//
// A failure aborts the remaining steps and is returned. GC failures are
// only logged.
//
// Any manifest read failure, including a transient I/O error, is treated
// like corruption: the new manifest holds only the new record, and the GC
// pass that follows deletes the blobs of every earlier restore point.
func (m *ManifestManager) Create(ctx context.Context, pkg *domain.Package, title string, typ domain.Type) (domain.Record, error) {
	if err := pkg.Validate(); err != nil {
		return domain.Record{}, err
	}
	if err := validateTitle(title); err != nil {
		return domain.Record{}, err
	}
	if !typ.Valid() {
		return domain.Record{}, domain.ErrInvalidArgument.WithDetails("unknown type " + string(typ))
	}

	current, err := m.backend.Manifest(ctx)
	if err != nil {
		// The new manifest is built on an empty one, as after corruption.
		m.logger.Warn("restore point manifest unreadable, starting from empty", "error", err)
		current = domain.Manifest{}
	}

	id, err := m.backend.NewID(ctx)
	if err != nil {
		return domain.Record{}, fmt.Errorf("allocate id: %w", err)
	}
	assetKeys := pkg.AssetKeys()
	record := domain.Record{
		ID:        id,
		Title:     title,
		CreatedAt: m.now().Unix(),
		Type:      typ,
		Assets:    assetKeys,
	}

	next := make(domain.Manifest, 0, len(current)+1)
	next = append(next, record)
	next = append(next, current.Without(id)...)
	next, evicted := next.Trim(m.maxRetained)

	if err := m.backend.PutManifest(ctx, next); err != nil {
		return domain.Record{}, fmt.Errorf("write manifest: %w", err)
	}
	m.metrics.ManifestEntries(len(next))

	if err := m.backend.PutProject(ctx, id, pkg.Main); err != nil {
		return domain.Record{}, fmt.Errorf("write project %s: %w", id, err)
	}

	stored := m.storedAssets(ctx)
	for _, key := range assetKeys {
		if _, ok := stored[key]; ok {
			continue
		}
		if err := m.backend.PutAsset(ctx, key, pkg.Assets[key]); err != nil {
			return domain.Record{}, fmt.Errorf("write asset %s: %w", key, err)
		}
	}

	stats, _ := m.gc.Collect(ctx, next)

	m.logger.Info("restore point created",
		"id", id,
		"type", typ,
		"assets", len(assetKeys),
		"evicted", len(evicted),
		"projects_collected", stats.ProjectsDeleted,
		"assets_collected", stats.AssetsDeleted)

	return record, nil
}

// storedAssets lists asset keys already in the backend. A listing failure
// yields an empty set; PutAsset skips existing keys on its own.
func (m *ManifestManager) storedAssets(ctx context.Context) map[string]struct{} {
	keys, err := m.backend.AssetKeys(ctx).Collect()
	if err != nil {
		m.logger.Debug("listing stored assets failed", "error", err)
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Delete removes restore point id: the manifest is rewritten without it,
// then its main document is deleted and GC runs.
func (m *ManifestManager) Delete(ctx context.Context, id string) error {
	current, err := m.Manifest(ctx)
	if err != nil {
		return err
	}
	if _, ok := current.Find(id); !ok {
		return domain.ErrNotFound.WithDetails(id)
	}

	next := current.Without(id)
	if err := m.backend.PutManifest(ctx, next); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	m.metrics.ManifestEntries(len(next))

	if err := m.backend.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	_, _ = m.gc.Collect(ctx, next)

	m.logger.Info("restore point deleted", "id", id)
	return nil
}

// DeleteAll wipes the manifest and every blob.
func (m *ManifestManager) DeleteAll(ctx context.Context) error {
	if err := m.backend.DeleteAll(ctx); err != nil {
		return err
	}
	m.metrics.ManifestEntries(0)
	return nil
}

func validateTitle(title string) error {
	if len(title) > MaxTitleLength {
		return domain.ErrInvalidArgument.WithDetails("title too long")
	}
	if !utf8.ValidString(title) {
		return domain.ErrInvalidArgument.WithDetails("title is not valid UTF-8")
	}
	return nil
}
