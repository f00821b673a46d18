package kvstore

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
	"github.com/yndnr/restorepoint-go/internal/storage/storagetest"
)

func testConfig(t *testing.T, dir string) Config {
	t.Helper()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = "1h" // Disable auto GC for tests
	cfg.Logger = slog.New(slog.DiscardHandler)
	return cfg
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(testConfig(t, t.TempDir()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return newTestStore(t)
	})
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty dir should fail")
	}
}

func TestStore_NumericIDs(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	var prev uint64
	for i := 0; i < 40; i++ {
		id, err := s.NewID(ctx)
		if err != nil {
			t.Fatalf("NewID() error = %v", err)
		}
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			t.Fatalf("NewID() = %q, not numeric", id)
		}
		if n <= prev {
			t.Fatalf("NewID() = %d, not after %d", n, prev)
		}
		prev = n
	}
}

func TestStore_IDsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(testConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.NewID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutManifest(ctx, domain.Manifest{
		{ID: first, Title: "kept", CreatedAt: 1, Type: domain.TypeManual, Assets: []string{}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = New(testConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	second, err := s.NewID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := strconv.ParseUint(first, 10, 64)
	b, _ := strconv.ParseUint(second, 10, 64)
	if b <= a {
		t.Errorf("id after reopen = %d, want > %d", b, a)
	}

	m, err := s.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 1 || m[0].Title != "kept" {
		t.Errorf("Manifest() after reopen = %+v", m)
	}
}

func TestStore_ManifestNewestFirst(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	var m domain.Manifest
	for i := 0; i < 4; i++ {
		id, err := s.NewID(ctx)
		if err != nil {
			t.Fatal(err)
		}
		m = append(domain.Manifest{{ID: id, Title: strconv.Itoa(i), CreatedAt: int64(i), Type: domain.TypeAutomatic, Assets: []string{}}}, m...)
	}
	if err := s.PutManifest(ctx, m); err != nil {
		t.Fatal(err)
	}

	got, err := s.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var titles []string
	for _, r := range got {
		titles = append(titles, r.Title)
	}
	if want := []string{"3", "2", "1", "0"}; !slices.Equal(titles, want) {
		t.Errorf("titles = %v, want %v", titles, want)
	}
}

func TestStore_RejectsNonNumericIDs(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	for _, id := range []string{"abc", "007", "-1", "1.5"} {
		if err := s.PutProject(ctx, id, []byte("x")); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("PutProject(%q) = %v, want ErrInvalidArgument", id, err)
		}
	}
	err := s.PutManifest(ctx, domain.Manifest{{ID: "abc", Title: "t", Type: domain.TypeManual}})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("PutManifest(non-numeric id) = %v, want ErrInvalidArgument", err)
	}
}

func TestStore_CorruptMetadata(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	key, err := recordKey(prefixMeta, "7")
	if err != nil {
		t.Fatal(err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte("{not json"))
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Manifest(ctx); !errors.Is(err, domain.ErrCorruptedManifest) {
		t.Errorf("Manifest() = %v, want ErrCorruptedManifest", err)
	}
}

func TestStore_GC(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.GC(context.Background()); err != nil {
		t.Errorf("GC() error = %v", err)
	}
	if s.Stats().LastGCTime == 0 {
		t.Error("LastGCTime not recorded")
	}
}

func TestStore_RegisterMetrics(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	reg := prometheus.NewRegistry()
	s.RegisterMetrics(reg)

	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if n != 5 {
		t.Errorf("registered %d metrics, want 5", n)
	}
}

func TestProbe(t *testing.T) {
	if err := Probe(t.TempDir()); err != nil {
		t.Errorf("Probe() error = %v", err)
	}
}
