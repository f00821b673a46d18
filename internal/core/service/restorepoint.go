package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
)

// DefaultMinCreateDuration is the least time a create takes, so progress
// feedback is visible instead of flashing.
const DefaultMinCreateDuration = 500 * time.Millisecond

// Serializer captures the current document.
type Serializer interface {
	// Serialize returns the document as a package.
	Serialize(ctx context.Context) (*domain.Package, error)

	// Title returns the title used for automatic restore points.
	Title() string
}

// Deserializer replaces the current document with a package.
type Deserializer interface {
	Deserialize(ctx context.Context, pkg *domain.Package) error
}

// LegacySource reads the previous-generation autosave store.
type LegacySource interface {
	Load(ctx context.Context) (domain.Package, error)
}

// Capability is the opened storage, possibly unsupported.
// *capability.Handle implements it.
type Capability interface {
	Supported() bool
	Err() error
	Backend() storage.Backend
}

// Config configures RestorePoints.
type Config struct {
	// MaxRetained is the retention cap. Default: domain.MaxRetained.
	MaxRetained int

	// MinCreateDuration pads every create to at least this long.
	// Default: DefaultMinCreateDuration. Negative disables padding.
	MinCreateDuration time.Duration

	Serializer   Serializer
	Deserializer Deserializer
	Legacy       LegacySource

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics Metrics
}

// RestorePoints is the restore point facade.
//
// Mutating operations share one lock. A manual create issued while an
// automatic create is running waits for it and runs afterwards; two creates
// never interleave their writes.
type RestorePoints struct {
	capability Capability
	manager    *ManifestManager
	cfg        Config
	logger     *slog.Logger
	metrics    Metrics

	mu sync.Mutex // serializes mutations

	bgMu  sync.Mutex
	bgErr error
}

// NewRestorePoints creates the facade. If capability is unsupported every
// operation returns domain.ErrUnsupported.
func NewRestorePoints(capability Capability, cfg Config) *RestorePoints {
	if cfg.MinCreateDuration == 0 {
		cfg.MinCreateDuration = DefaultMinCreateDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Metrics = metricsOrNop(cfg.Metrics)

	rp := &RestorePoints{
		capability: capability,
		cfg:        cfg,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if capability.Supported() {
		rp.manager = NewManifestManager(capability.Backend(), ManifestConfig{
			MaxRetained: cfg.MaxRetained,
			Now:         cfg.Now,
			Logger:      cfg.Logger,
			Metrics:     cfg.Metrics,
		})
	}
	return rp
}

// IsSupported reports whether restore points can be stored on this host.
func (rp *RestorePoints) IsSupported() bool {
	return rp.capability.Supported()
}

// MinCreateDuration returns the create padding.
func (rp *RestorePoints) MinCreateDuration() time.Duration {
	return max(rp.cfg.MinCreateDuration, 0)
}

// MaxRetained returns the retention cap.
func (rp *RestorePoints) MaxRetained() int {
	if rp.manager == nil {
		return max(rp.cfg.MaxRetained, 0)
	}
	return rp.manager.MaxRetained()
}

// BackgroundError returns the last automatic create failure. It is cleared
// by the next successful automatic create.
func (rp *RestorePoints) BackgroundError() error {
	rp.bgMu.Lock()
	defer rp.bgMu.Unlock()
	return rp.bgErr
}

// CreateManual serializes the document and stores it as a manual restore
// point titled title.
func (rp *RestorePoints) CreateManual(ctx context.Context, title string) (domain.Record, error) {
	return rp.createFromSerializer(ctx, title, domain.TypeManual)
}

// CreateAutomatic serializes the document and stores it as an automatic
// restore point titled with the serializer's title.
func (rp *RestorePoints) CreateAutomatic(ctx context.Context) (domain.Record, error) {
	title := ""
	if rp.cfg.Serializer != nil {
		title = rp.cfg.Serializer.Title()
	}
	rec, err := rp.createFromSerializer(ctx, title, domain.TypeAutomatic)

	rp.bgMu.Lock()
	rp.bgErr = err
	rp.bgMu.Unlock()
	return rec, err
}

// Import stores an already serialized package as a manual restore point.
func (rp *RestorePoints) Import(ctx context.Context, pkg *domain.Package, title string) (domain.Record, error) {
	return rp.create(ctx, domain.TypeManual, func(context.Context) (*domain.Package, string, error) {
		return pkg, title, nil
	})
}

func (rp *RestorePoints) createFromSerializer(ctx context.Context, title string, typ domain.Type) (domain.Record, error) {
	return rp.create(ctx, typ, func(ctx context.Context) (*domain.Package, string, error) {
		if rp.cfg.Serializer == nil {
			return nil, "", errors.New("no serializer configured")
		}
		pkg, err := rp.cfg.Serializer.Serialize(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("serialize: %w", err)
		}
		return pkg, title, nil
	})
}

// create runs one create under the writer lock, then pads the call to
// MinCreateDuration after the lock is released.
//
// ctx is honoured only until the lock is held. From then on the create runs
// to completion: a create stopped between the manifest write and its blob
// writes would list a restore point that cannot be loaded.
func (rp *RestorePoints) create(
	ctx context.Context,
	typ domain.Type,
	capture func(context.Context) (*domain.Package, string, error),
) (domain.Record, error) {
	if err := rp.check(); err != nil {
		return domain.Record{}, err
	}
	start := time.Now()

	rec, err := func() (domain.Record, error) {
		rp.mu.Lock()
		defer rp.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return domain.Record{}, err
		}

		wctx := context.WithoutCancel(ctx)
		pkg, title, err := capture(wctx)
		if err != nil {
			return domain.Record{}, err
		}
		return rp.manager.Create(wctx, pkg, title, typ)
	}()

	rp.metrics.ObserveCreate(string(typ), time.Since(start), err)
	if err != nil {
		rp.logger.Warn("restore point create failed", "type", typ, "error", err)
	}

	if remaining := rp.MinCreateDuration() - time.Since(start); remaining > 0 {
		t := time.NewTimer(remaining)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	return rec, err
}

// List returns the retained restore points, newest first by creation time.
// Records with equal times keep manifest order. A corrupted manifest lists
// as empty.
func (rp *RestorePoints) List(ctx context.Context) ([]domain.Record, error) {
	if err := rp.check(); err != nil {
		return nil, err
	}
	m, err := rp.manager.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	records := []domain.Record(m.Clone())
	slices.SortStableFunc(records, func(a, b domain.Record) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	return records, nil
}

// Get returns the record of restore point id.
func (rp *RestorePoints) Get(ctx context.Context, id string) (domain.Record, error) {
	if err := rp.check(); err != nil {
		return domain.Record{}, err
	}
	m, err := rp.manager.Manifest(ctx)
	if err != nil {
		return domain.Record{}, err
	}
	rec, ok := m.Find(id)
	if !ok {
		return domain.Record{}, domain.ErrNotFound.WithDetails(id)
	}
	return rec.Clone(), nil
}

// Load reads restore point id back into a package.
//
// An id not in the manifest returns domain.ErrNotFound. A listed restore
// point whose main document or any asset cannot be read returns
// domain.ErrCorruptedSnapshot; other restore points are unaffected.
func (rp *RestorePoints) Load(ctx context.Context, id string) (*domain.Package, error) {
	rec, err := rp.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	backend := rp.capability.Backend()

	main, err := backend.Project(ctx, id)
	if err != nil {
		return nil, corrupted(id, "main document", err)
	}
	if main == nil {
		main = []byte{}
	}
	pkg := &domain.Package{Main: main, Assets: make(map[string][]byte, len(rec.Assets))}
	for _, key := range rec.Assets {
		data, err := backend.Asset(ctx, key)
		if err != nil {
			return nil, corrupted(id, "asset "+key, err)
		}
		pkg.Assets[key] = data
	}
	return pkg, nil
}

func corrupted(id, what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, domain.ErrCorruptedSnapshot) {
		return err
	}
	return domain.ErrCorruptedSnapshot.WithDetails(fmt.Sprintf("%s: %s", id, what)).WithCause(err)
}

// Restore loads restore point id and hands it to the deserializer.
func (rp *RestorePoints) Restore(ctx context.Context, id string) error {
	if rp.cfg.Deserializer == nil {
		return errors.New("no deserializer configured")
	}
	pkg, err := rp.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := rp.cfg.Deserializer.Deserialize(ctx, pkg); err != nil {
		return fmt.Errorf("deserialize %s: %w", id, err)
	}
	rp.logger.Info("restore point restored", "id", id)
	return nil
}

// Delete removes restore point id.
func (rp *RestorePoints) Delete(ctx context.Context, id string) error {
	if err := rp.check(); err != nil {
		return err
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.manager.Delete(ctx, id)
}

// DeleteAll removes every restore point and blob.
func (rp *RestorePoints) DeleteAll(ctx context.Context) error {
	if err := rp.check(); err != nil {
		return err
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.manager.DeleteAll(ctx)
}

// LoadLegacy reads the document kept by the previous storage generation.
// It returns domain.ErrMigration when there is nothing to load.
func (rp *RestorePoints) LoadLegacy(ctx context.Context) (*domain.Package, error) {
	if rp.cfg.Legacy == nil {
		return nil, domain.ErrMigration.WithDetails("no legacy store configured")
	}
	pkg, err := rp.cfg.Legacy.Load(ctx)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrMigration.Code) {
			return nil, err
		}
		return nil, domain.ErrMigration.WithCause(err)
	}
	return &pkg, nil
}

func (rp *RestorePoints) check() error {
	if !rp.capability.Supported() {
		if err := rp.capability.Err(); err != nil {
			return err
		}
		return domain.ErrUnsupported
	}
	return nil
}
