package benchmark

import (
	"context"
	"fmt"
	"testing"
)

// BenchmarkCreate measures a create whose assets are all new.
func BenchmarkCreate(b *testing.B) {
	for _, be := range backends {
		for _, n := range AssetCounts {
			b.Run(fmt.Sprintf("%s/assets_%d", be.name, n), func(b *testing.B) {
				backend := be.open(b, b.TempDir())
				defer backend.Close()
				rp := newRestorePoints(backend)
				ctx := context.Background()

				b.ResetTimer()
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					b.StopTimer()
					pkg := newPackage(b, n)
					b.StartTimer()
					if _, err := rp.Import(ctx, pkg, "bench"); err != nil {
						b.Fatalf("Import() error = %v", err)
					}
				}
				b.StopTimer()
				reportMemory(b, "mem")
			})
		}
	}
}

// BenchmarkCreateDeduplicated measures a create whose assets are already
// stored, the common autosave case.
func BenchmarkCreateDeduplicated(b *testing.B) {
	for _, be := range backends {
		b.Run(be.name, func(b *testing.B) {
			backend := be.open(b, b.TempDir())
			defer backend.Close()
			rp := newRestorePoints(backend)
			ctx := context.Background()

			pkg := newPackage(b, 10)
			if _, err := rp.Import(ctx, pkg, "seed"); err != nil {
				b.Fatalf("Import() error = %v", err)
			}

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := rp.Import(ctx, pkg, "again"); err != nil {
					b.Fatalf("Import() error = %v", err)
				}
			}
		})
	}
}

// BenchmarkLoad measures reading a restore point back.
func BenchmarkLoad(b *testing.B) {
	for _, be := range backends {
		b.Run(be.name, func(b *testing.B) {
			backend := be.open(b, b.TempDir())
			defer backend.Close()
			rp := newRestorePoints(backend)
			ctx := context.Background()

			rec, err := rp.Import(ctx, newPackage(b, 10), "seed")
			if err != nil {
				b.Fatalf("Import() error = %v", err)
			}

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := rp.Load(ctx, rec.ID); err != nil {
					b.Fatalf("Load() error = %v", err)
				}
			}
		})
	}
}

// BenchmarkList measures listing a full manifest.
func BenchmarkList(b *testing.B) {
	for _, be := range backends {
		b.Run(be.name, func(b *testing.B) {
			backend := be.open(b, b.TempDir())
			defer backend.Close()
			rp := newRestorePoints(backend)
			ctx := context.Background()

			for range rp.MaxRetained() {
				if _, err := rp.Import(ctx, newPackage(b, 1), "seed"); err != nil {
					b.Fatalf("Import() error = %v", err)
				}
			}

			b.ResetTimer()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := rp.List(ctx); err != nil {
					b.Fatalf("List() error = %v", err)
				}
			}
		})
	}
}
