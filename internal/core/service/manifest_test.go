package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
	"github.com/yndnr/restorepoint-go/internal/storage/fsstore"
)

func newTestManager(t *testing.T, backend storage.Backend) *ManifestManager {
	t.Helper()
	return NewManifestManager(backend, ManifestConfig{Now: stepClock(), Logger: quietLogger})
}

func TestManifestManager_RetentionCap(t *testing.T) {
	m := newTestManager(t, newFSBackend(t))
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		if _, err := m.Create(ctx, pkgWith("p"+strconv.Itoa(i)), strconv.Itoa(i), domain.TypeAutomatic); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
		got, err := m.Manifest(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) > domain.MaxRetained {
			t.Fatalf("after create %d: len(manifest) = %d, want <= %d", i, len(got), domain.MaxRetained)
		}
	}
}

func TestManifestManager_FIFOEviction(t *testing.T) {
	backend := newFSBackend(t)
	m := NewManifestManager(backend, ManifestConfig{MaxRetained: 3, Now: stepClock(), Logger: quietLogger})
	ctx := context.Background()

	var ids []string
	for i := 1; i <= 4; i++ {
		rec, err := m.Create(ctx, pkgWith("p", "only-"+strconv.Itoa(i)+".png"), strconv.Itoa(i), domain.TypeManual)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rec.ID)
	}

	got, err := m.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"4", "3", "2"}; !slices.Equal(titles(got), want) {
		t.Errorf("titles = %v, want %v", titles(got), want)
	}

	if _, err := backend.Project(ctx, ids[0]); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("evicted project blob: Project() = %v, want ErrKeyNotFound", err)
	}
	assets := mustCollect(t, backend.AssetKeys(ctx))
	if _, ok := assets["only-1.png"]; ok {
		t.Error("evicted restore point's unique asset was not collected")
	}
	if _, ok := assets["only-2.png"]; !ok {
		t.Error("retained restore point's asset was collected")
	}
}

func TestManifestManager_WriteOrder(t *testing.T) {
	backend := newFaultBackend(newFSBackend(t))
	m := newTestManager(t, backend)
	ctx := context.Background()

	if _, err := m.Create(ctx, pkgWith("p", "b.png", "a.png"), "t", domain.TypeManual); err != nil {
		t.Fatal(err)
	}

	var writes []string
	for _, c := range backend.log() {
		switch c {
		case "PutManifest", "PutProject", "PutAsset:a.png", "PutAsset:b.png", "DeleteProject", "DeleteAsset":
			writes = append(writes, c)
		}
	}
	want := []string{"PutManifest", "PutProject", "PutAsset:a.png", "PutAsset:b.png"}
	if !slices.Equal(writes, want) {
		t.Errorf("write order = %v, want %v", writes, want)
	}
}

func TestManifestManager_SkipsStoredAssets(t *testing.T) {
	backend := newFaultBackend(newFSBackend(t))
	m := newTestManager(t, backend)
	ctx := context.Background()

	if _, err := m.Create(ctx, pkgWith("p", "x.png", "y.png"), "A", domain.TypeManual); err != nil {
		t.Fatal(err)
	}
	backend.reset()
	if _, err := m.Create(ctx, pkgWith("p", "y.png", "z.png"), "B", domain.TypeManual); err != nil {
		t.Fatal(err)
	}

	log := backend.log()
	if slices.Contains(log, "PutAsset:y.png") {
		t.Error("stored asset y.png was written again")
	}
	if !slices.Contains(log, "PutAsset:z.png") {
		t.Error("new asset z.png was not written")
	}
}

func TestManifestManager_ManifestWriteFailure(t *testing.T) {
	backend := newFaultBackend(newFSBackend(t))
	m := newTestManager(t, backend)
	ctx := context.Background()

	boom := errors.New("disk full")
	backend.setFail("PutManifest", boom)

	if _, err := m.Create(ctx, pkgWith("p", "a.png"), "t", domain.TypeManual); !errors.Is(err, boom) {
		t.Fatalf("Create() error = %v, want %v", err, boom)
	}
	for _, c := range backend.log() {
		if c == "PutProject" || c == "PutAsset" {
			t.Errorf("%s ran after the manifest write failed", c)
		}
	}
}

func TestManifestManager_InterruptedCreate(t *testing.T) {
	backend := newFaultBackend(newFSBackend(t))
	m := newTestManager(t, backend)
	ctx := context.Background()

	good, err := m.Create(ctx, pkgWith("good", "shared.png"), "good", domain.TypeManual)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("io error")
	backend.setFail("PutAsset:new.png", boom)
	bad, err := m.Create(ctx, pkgWith("bad", "shared.png", "new.png"), "bad", domain.TypeManual)
	if !errors.Is(err, boom) {
		t.Fatalf("Create() error = %v, want %v", err, boom)
	}
	if bad.ID != "" {
		t.Errorf("failed Create() returned record %+v", bad)
	}

	// The interrupted restore point is listed; its project blob exists but
	// its new asset does not. The earlier restore point is intact.
	got, err := m.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"bad", "good"}; !slices.Equal(titles(got), want) {
		t.Fatalf("titles = %v, want %v", titles(got), want)
	}
	if _, err := backend.Project(ctx, good.ID); err != nil {
		t.Errorf("good project: %v", err)
	}
	if _, err := backend.Asset(ctx, "new.png"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("Asset(new.png) = %v, want ErrKeyNotFound", err)
	}
}

func TestManifestManager_CorruptManifestRecovers(t *testing.T) {
	backend := newFSBackend(t)
	m := newTestManager(t, backend)
	ctx := context.Background()

	if _, err := m.Create(ctx, pkgWith("p", "a.png"), "before", domain.TypeManual); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(backend.Dir(), fsstore.ManifestName), []byte("\x00\x01garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	got, err := m.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Manifest() = %v, want empty", got)
	}

	// The next create starts from empty and collects the unreachable blobs.
	rec, err := m.Create(ctx, pkgWith("p2"), "after", domain.TypeManual)
	if err != nil {
		t.Fatal(err)
	}
	got, err = m.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != rec.ID {
		t.Errorf("Manifest() = %v, want only %s", got.IDs(), rec.ID)
	}
	if assets := mustCollect(t, backend.AssetKeys(ctx)); len(assets) != 0 {
		t.Errorf("assets after recovery = %v, want none", assets)
	}
}

func TestManifestManager_Validation(t *testing.T) {
	m := newTestManager(t, newFSBackend(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		pkg   *domain.Package
		title string
		typ   domain.Type
	}{
		{"nil package", nil, "t", domain.TypeManual},
		{"no main document", &domain.Package{}, "t", domain.TypeManual},
		{"bad asset key", pkgWith("p", "../escape"), "t", domain.TypeManual},
		{"bad title", pkgWith("p"), "\xff\xfe", domain.TypeManual},
		{"bad type", pkgWith("p"), "t", domain.Type("hourly")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Create(ctx, tt.pkg, tt.title, tt.typ); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("Create() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestManifestManager_Delete(t *testing.T) {
	backend := newFSBackend(t)
	m := newTestManager(t, backend)
	ctx := context.Background()

	rec, err := m.Create(ctx, pkgWith("p", "a.png"), "t", domain.TypeManual)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Delete(ctx, "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Delete(unknown) = %v, want ErrNotFound", err)
	}

	if err := m.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := backend.Project(ctx, rec.ID); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("Project() after Delete = %v, want ErrKeyNotFound", err)
	}
	if assets := mustCollect(t, backend.AssetKeys(ctx)); len(assets) != 0 {
		t.Errorf("assets after Delete = %v, want none", assets)
	}
}
