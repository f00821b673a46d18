// Package capability selects and opens the restore point storage backend.
//
// Selection happens once per (kind, dir): the first Open probes the host,
// opens the backend and publishes the result; concurrent and later Open
// calls for the same pair wait for and share that result. A host with no
// usable backend yields a Handle reporting Supported() == false, and the
// answer is not probed again until every holder has closed it.
package capability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
	"github.com/yndnr/restorepoint-go/internal/storage/fsstore"
	"github.com/yndnr/restorepoint-go/internal/storage/kvstore"
	"github.com/yndnr/restorepoint-go/internal/storage/sealed"
)

// Backend kinds accepted by Open.
const (
	KindAuto = "auto"
	KindFS   = fsstore.Kind
	KindKV   = kvstore.Kind
)

// badgerMarker is the file Badger keeps in every database directory.
const badgerMarker = "MANIFEST"

// Options configures Open.
type Options struct {
	// Kind is "auto", "fs" or "kv". Default: "auto".
	Kind string

	// Dir is the storage root.
	Dir string

	// SealSecret enables blob sealing when non-empty.
	SealSecret []byte

	// Registerer receives the Badger gauges when the kv backend is opened.
	Registerer prometheus.Registerer

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Handle is a shared reference to an opened backend.
type Handle struct {
	key     string
	backend storage.Backend
	err     error
	once    sync.Once
}

// Supported reports whether a backend is available.
func (h *Handle) Supported() bool { return h.err == nil }

// Err returns the reason the handle is unsupported, matching
// domain.ErrUnsupported.
func (h *Handle) Err() error { return h.err }

// Backend returns the opened backend, or nil if unsupported.
func (h *Handle) Backend() storage.Backend { return h.backend }

// Kind returns the kind of the opened backend, or "" if unsupported.
func (h *Handle) Kind() string {
	if h.backend == nil {
		return ""
	}
	return h.backend.Kind()
}

// Close releases this reference. The backend is closed when the last
// reference is released. Calling Close more than once is safe.
func (h *Handle) Close() error {
	var err error
	h.once.Do(func() { err = release(h.key) })
	return err
}

// entry is a future for one (kind, dir) pair.
type entry struct {
	done chan struct{}
	refs int

	backend storage.Backend
	err     error
}

var registry = struct {
	mu      sync.Mutex
	entries map[string]*entry
}{entries: make(map[string]*entry)}

// Open returns a handle for opts.Kind in opts.Dir. It never returns a nil
// handle; the returned error is only ctx.Err() from waiting on another
// caller's open.
func Open(ctx context.Context, opts Options) (*Handle, error) {
	if opts.Kind == "" {
		opts.Kind = KindAuto
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	dir := opts.Dir
	if abs, err := filepath.Abs(dir); err == nil && dir != "" {
		dir = abs
	}
	key := opts.Kind + "\x00" + dir

	registry.mu.Lock()
	e, ok := registry.entries[key]
	if !ok {
		e = &entry{done: make(chan struct{})}
		registry.entries[key] = e
	}
	e.refs++
	registry.mu.Unlock()

	if !ok {
		e.backend, e.err = open(opts)
		close(e.done)
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		_ = release(key)
		return nil, ctx.Err()
	}
	return &Handle{key: key, backend: e.backend, err: e.err}, nil
}

func release(key string) error {
	registry.mu.Lock()
	e, ok := registry.entries[key]
	if !ok {
		registry.mu.Unlock()
		return nil
	}
	e.refs--
	last := e.refs == 0
	if last {
		delete(registry.entries, key)
	}
	registry.mu.Unlock()

	if !last {
		return nil
	}
	<-e.done
	if e.backend != nil {
		return e.backend.Close()
	}
	return nil
}

// open probes and opens the backend. Failures are reported as
// domain.ErrUnsupported.
func open(opts Options) (storage.Backend, error) {
	kind, probeErr := choose(opts.Kind, opts.Dir)
	if kind == "" {
		opts.Logger.Warn("restore points unsupported", "dir", opts.Dir, "error", probeErr)
		return nil, domain.ErrUnsupported.WithCause(probeErr)
	}

	var (
		b   storage.Backend
		err error
	)
	switch kind {
	case KindFS:
		b, err = fsstore.New(fsstore.Config{Dir: opts.Dir, Logger: opts.Logger})
	case KindKV:
		cfg := kvstore.DefaultConfig(opts.Dir)
		cfg.Logger = opts.Logger
		var s *kvstore.Store
		s, err = kvstore.New(cfg)
		if err == nil && opts.Registerer != nil {
			s.RegisterMetrics(opts.Registerer)
		}
		b = s
	}
	if err != nil {
		opts.Logger.Warn("restore points unsupported", "kind", kind, "dir", opts.Dir, "error", err)
		return nil, domain.ErrUnsupported.WithCause(err)
	}

	if len(opts.SealSecret) > 0 {
		sb, serr := sealed.New(b, opts.SealSecret)
		if serr != nil {
			b.Close()
			return nil, domain.ErrUnsupported.WithDetails("sealing").WithCause(serr)
		}
		b = sb
	}

	opts.Logger.Info("restore point storage opened", "kind", kind, "dir", opts.Dir, "sealed", len(opts.SealSecret) > 0)
	return b, nil
}

// choose probes the host for the requested kind. "auto" keeps an existing
// Badger database, else prefers the file store, else falls back to Badger.
func choose(kind, dir string) (string, error) {
	switch kind {
	case KindFS:
		if err := fsstore.Probe(dir); err != nil {
			return "", err
		}
		return KindFS, nil
	case KindKV:
		if dir == "" {
			return "", errors.New("kv: dir is required")
		}
		return KindKV, nil
	case KindAuto:
		if dir == "" {
			return "", errors.New("dir is required")
		}
		if _, err := os.Stat(filepath.Join(dir, badgerMarker)); err == nil {
			return KindKV, nil
		}
		fsErr := fsstore.Probe(dir)
		if fsErr == nil {
			return KindFS, nil
		}
		kvErr := kvstore.Probe(dir)
		if kvErr == nil {
			return KindKV, nil
		}
		return "", errors.Join(fsErr, kvErr)
	default:
		return "", fmt.Errorf("unknown backend kind %q", kind)
	}
}
