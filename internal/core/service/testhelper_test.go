package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
	"github.com/yndnr/restorepoint-go/internal/storage/fsstore"
)

var quietLogger = slog.New(slog.DiscardHandler)

func newFSBackend(t *testing.T) *fsstore.Store {
	t.Helper()
	s, err := fsstore.New(fsstore.Config{Dir: t.TempDir(), Logger: quietLogger})
	if err != nil {
		t.Fatalf("fsstore.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeCapability is a Capability over a fixed backend.
type fakeCapability struct {
	backend storage.Backend
	err     error
}

func (c fakeCapability) Supported() bool          { return c.err == nil }
func (c fakeCapability) Err() error               { return c.err }
func (c fakeCapability) Backend() storage.Backend { return c.backend }

// fakeSerializer returns a preset package. If block is set, Serialize
// signals entered and waits on block.
type fakeSerializer struct {
	mu      sync.Mutex
	pkg     *domain.Package
	title   string
	err     error
	entered chan struct{}
	block   chan struct{}
}

func (s *fakeSerializer) set(pkg *domain.Package) {
	s.mu.Lock()
	s.pkg = pkg
	s.mu.Unlock()
}

func (s *fakeSerializer) Serialize(ctx context.Context) (*domain.Package, error) {
	s.mu.Lock()
	pkg, err, entered, block := s.pkg, s.err, s.entered, s.block
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return pkg, err
}

func (s *fakeSerializer) Title() string { return s.title }

type recordingDeserializer struct {
	got *domain.Package
}

func (d *recordingDeserializer) Deserialize(ctx context.Context, pkg *domain.Package) error {
	d.got = pkg
	return nil
}

// faultBackend wraps a backend, logs every mutating call and fails the
// operations listed in fail.
type faultBackend struct {
	storage.Backend

	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newFaultBackend(inner storage.Backend) *faultBackend {
	return &faultBackend{Backend: inner, fail: make(map[string]error)}
}

func (f *faultBackend) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *faultBackend) setFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

func (f *faultBackend) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *faultBackend) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *faultBackend) Manifest(ctx context.Context) (domain.Manifest, error) {
	if err := f.record("Manifest"); err != nil {
		return nil, err
	}
	return f.Backend.Manifest(ctx)
}

func (f *faultBackend) PutManifest(ctx context.Context, m domain.Manifest) error {
	if err := f.record("PutManifest"); err != nil {
		return err
	}
	return f.Backend.PutManifest(ctx, m)
}

func (f *faultBackend) PutProject(ctx context.Context, id string, data []byte) error {
	if err := f.record("PutProject"); err != nil {
		return err
	}
	return f.Backend.PutProject(ctx, id, data)
}

func (f *faultBackend) DeleteProject(ctx context.Context, id string) error {
	if err := f.record("DeleteProject"); err != nil {
		return err
	}
	return f.Backend.DeleteProject(ctx, id)
}

func (f *faultBackend) PutAsset(ctx context.Context, key string, data []byte) error {
	if err := f.record("PutAsset:" + key); err != nil {
		return err
	}
	if err := f.record("PutAsset"); err != nil {
		return err
	}
	return f.Backend.PutAsset(ctx, key, data)
}

func (f *faultBackend) DeleteAsset(ctx context.Context, key string) error {
	if err := f.record("DeleteAsset"); err != nil {
		return err
	}
	return f.Backend.DeleteAsset(ctx, key)
}

func (f *faultBackend) AssetKeys(ctx context.Context) *storage.KeySeq {
	if err := f.record("AssetKeys"); err != nil {
		return storage.FailedKeySeq(err)
	}
	return f.Backend.AssetKeys(ctx)
}

// stepClock returns a Now that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Unix(1_700_000_000, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func pkgWith(main string, assets ...string) *domain.Package {
	p := &domain.Package{Main: []byte(main), Assets: make(map[string][]byte)}
	for _, a := range assets {
		p.Assets[a] = []byte("data-of-" + a)
	}
	return p
}

func newTestRestorePoints(t *testing.T, backend storage.Backend, ser *fakeSerializer) *RestorePoints {
	t.Helper()
	if ser == nil {
		ser = &fakeSerializer{pkg: pkgWith(`{"targets":[]}`), title: "Project"}
	}
	return NewRestorePoints(fakeCapability{backend: backend}, Config{
		MinCreateDuration: -1,
		Serializer:        ser,
		Deserializer:      &recordingDeserializer{},
		Now:               stepClock(),
		Logger:            quietLogger,
	})
}

func mustCollect(t *testing.T, seq *storage.KeySeq) map[string]struct{} {
	t.Helper()
	keys, err := seq.Collect()
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func titles(records []domain.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Title
	}
	return out
}
