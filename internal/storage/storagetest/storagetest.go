// Package storagetest provides a conformance suite for storage.Backend
// implementations.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) storage.Backend

// Run exercises the Backend contract against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, b storage.Backend)
	}{
		{"EmptyManifest", testEmptyManifest},
		{"ManifestRoundTrip", testManifestRoundTrip},
		{"NewIDUnique", testNewIDUnique},
		{"ProjectBlobs", testProjectBlobs},
		{"EmptyBlobs", testEmptyBlobs},
		{"AssetDedup", testAssetDedup},
		{"KeyListing", testKeyListing},
		{"DeleteAbsent", testDeleteAbsent},
		{"DeleteAll", testDeleteAll},
		{"InvalidKey", testInvalidKey},
		{"Closed", testClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newBackend(t)
			t.Cleanup(func() { _ = b.Close() })
			tc.fn(t, b)
		})
	}
}

func sampleManifest(t *testing.T, b storage.Backend) domain.Manifest {
	t.Helper()
	ctx := context.Background()
	id1, err := b.NewID(ctx)
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := b.NewID(ctx)
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	return domain.Manifest{
		{ID: id2, Title: "second", CreatedAt: 1700000100, Type: domain.TypeAutomatic, Assets: []string{"a.png", "b.wav"}},
		{ID: id1, Title: "first", CreatedAt: 1700000000, Type: domain.TypeManual, Assets: []string{}},
	}
}

func testEmptyManifest(t *testing.T, b storage.Backend) {
	m, err := b.Manifest(context.Background())
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if len(m) != 0 {
		t.Errorf("Manifest() = %v, want empty", m)
	}
}

func testManifestRoundTrip(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	want := sampleManifest(t, b)

	if err := b.PutManifest(ctx, want); err != nil {
		t.Fatalf("PutManifest() error = %v", err)
	}
	got, err := b.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len(Manifest()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Title != w.Title || g.CreatedAt != w.CreatedAt || g.Type != w.Type {
			t.Errorf("record %d = %+v, want %+v", i, g, w)
		}
		if !slices.Equal(g.Assets, w.Assets) {
			t.Errorf("record %d assets = %v, want %v", i, g.Assets, w.Assets)
		}
	}

	// Overwrite with a shorter manifest.
	if err := b.PutManifest(ctx, want[:1]); err != nil {
		t.Fatalf("PutManifest() error = %v", err)
	}
	got, err = b.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != want[0].ID {
		t.Errorf("Manifest() after overwrite = %v, want [%s]", got.IDs(), want[0].ID)
	}
}

func testNewIDUnique(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := b.NewID(ctx)
		if err != nil {
			t.Fatalf("NewID() error = %v", err)
		}
		if err := domain.ValidateKey(id); err != nil {
			t.Fatalf("NewID() = %q is not a valid key: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("NewID() returned duplicate %q", id)
		}
		seen[id] = struct{}{}
	}
}

func testProjectBlobs(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	id, err := b.NewID(ctx)
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}

	if _, err := b.Project(ctx, id); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("Project() on empty = %v, want ErrKeyNotFound", err)
	}

	data := []byte(`{"targets":[]}`)
	if err := b.PutProject(ctx, id, data); err != nil {
		t.Fatalf("PutProject() error = %v", err)
	}
	got, err := b.Project(ctx, id)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Project() = %q, want %q", got, data)
	}

	if err := b.DeleteProject(ctx, id); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}
	if _, err := b.Project(ctx, id); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("Project() after delete = %v, want ErrKeyNotFound", err)
	}
}

// testEmptyBlobs checks that an empty blob reads back as an empty, non-nil
// slice, so an empty main document still counts as present.
func testEmptyBlobs(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	id, err := b.NewID(ctx)
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if err := b.PutProject(ctx, id, []byte{}); err != nil {
		t.Fatalf("PutProject() error = %v", err)
	}
	got, err := b.Project(ctx, id)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Project() = %#v, want empty non-nil", got)
	}

	if err := b.PutAsset(ctx, "empty.wav", []byte{}); err != nil {
		t.Fatalf("PutAsset() error = %v", err)
	}
	got, err = b.Asset(ctx, "empty.wav")
	if err != nil {
		t.Fatalf("Asset() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Asset() = %#v, want empty non-nil", got)
	}
}

func testAssetDedup(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	if err := b.PutAsset(ctx, "x.svg", []byte("first")); err != nil {
		t.Fatalf("PutAsset() error = %v", err)
	}
	if err := b.PutAsset(ctx, "x.svg", []byte("second")); err != nil {
		t.Fatalf("PutAsset() again error = %v", err)
	}
	got, err := b.Asset(ctx, "x.svg")
	if err != nil {
		t.Fatalf("Asset() error = %v", err)
	}
	if string(got) != "first" {
		t.Errorf("Asset() = %q, want the first write to be kept", got)
	}

	if _, err := b.Asset(ctx, "missing.svg"); !errors.Is(err, storage.ErrKeyNotFound) {
		t.Errorf("Asset(missing) = %v, want ErrKeyNotFound", err)
	}
}

func testKeyListing(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := b.NewID(ctx)
		if err != nil {
			t.Fatalf("NewID() error = %v", err)
		}
		if err := b.PutProject(ctx, id, []byte("p")); err != nil {
			t.Fatalf("PutProject() error = %v", err)
		}
		ids = append(ids, id)
	}
	assets := []string{"a.png", "b.png", "c.wav", "d.svg"}
	for _, key := range assets {
		if err := b.PutAsset(ctx, key, []byte(key)); err != nil {
			t.Fatalf("PutAsset() error = %v", err)
		}
	}

	gotIDs, err := b.ProjectKeys(ctx).Collect()
	if err != nil {
		t.Fatalf("ProjectKeys() error = %v", err)
	}
	slices.Sort(gotIDs)
	slices.Sort(ids)
	if !slices.Equal(gotIDs, ids) {
		t.Errorf("ProjectKeys() = %v, want %v", gotIDs, ids)
	}

	gotAssets, err := b.AssetKeys(ctx).Collect()
	if err != nil {
		t.Fatalf("AssetKeys() error = %v", err)
	}
	slices.Sort(gotAssets)
	if !slices.Equal(gotAssets, assets) {
		t.Errorf("AssetKeys() = %v, want %v", gotAssets, assets)
	}

	// Stopping early must not fail the sequence.
	seq := b.AssetKeys(ctx)
	for range seq.All() {
		break
	}
	if err := seq.Err(); err != nil {
		t.Errorf("AssetKeys() early stop Err() = %v", err)
	}
}

func testDeleteAbsent(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	if err := b.DeleteAsset(ctx, "never-stored.png"); err != nil {
		t.Errorf("DeleteAsset(absent) = %v, want nil", err)
	}
	id, err := b.NewID(ctx)
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if err := b.DeleteProject(ctx, id); err != nil {
		t.Errorf("DeleteProject(absent) = %v, want nil", err)
	}
}

func testDeleteAll(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	m := sampleManifest(t, b)
	if err := b.PutManifest(ctx, m); err != nil {
		t.Fatalf("PutManifest() error = %v", err)
	}
	for _, r := range m {
		if err := b.PutProject(ctx, r.ID, []byte(r.Title)); err != nil {
			t.Fatalf("PutProject() error = %v", err)
		}
	}
	if err := b.PutAsset(ctx, "a.png", []byte("a")); err != nil {
		t.Fatalf("PutAsset() error = %v", err)
	}

	if err := b.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}

	got, err := b.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Manifest() after DeleteAll = %v, want empty", got)
	}
	projects, err := b.ProjectKeys(ctx).Collect()
	if err != nil || len(projects) != 0 {
		t.Errorf("ProjectKeys() after DeleteAll = %v, %v", projects, err)
	}
	assets, err := b.AssetKeys(ctx).Collect()
	if err != nil || len(assets) != 0 {
		t.Errorf("AssetKeys() after DeleteAll = %v, %v", assets, err)
	}

	// The backend stays usable.
	if err := b.PutAsset(ctx, "a.png", []byte("again")); err != nil {
		t.Errorf("PutAsset() after DeleteAll error = %v", err)
	}
}

func testInvalidKey(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	for _, key := range []string{"", "..", "a/b"} {
		if err := b.PutAsset(ctx, key, []byte("x")); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("PutAsset(%q) = %v, want ErrInvalidArgument", key, err)
		}
		if err := b.PutProject(ctx, key, []byte("x")); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("PutProject(%q) = %v, want ErrInvalidArgument", key, err)
		}
	}
}

func testClosed(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := b.Manifest(ctx); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Manifest() after Close = %v, want ErrClosed", err)
	}
	if err := b.PutAsset(ctx, "a.png", []byte("a")); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("PutAsset() after Close = %v, want ErrClosed", err)
	}
}
