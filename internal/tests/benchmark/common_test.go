package benchmark

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/core/service"
	"github.com/yndnr/restorepoint-go/internal/project"
	"github.com/yndnr/restorepoint-go/internal/storage"
	"github.com/yndnr/restorepoint-go/internal/storage/fsstore"
	"github.com/yndnr/restorepoint-go/internal/storage/kvstore"
	"github.com/yndnr/restorepoint-go/internal/storage/sealed"
)

// AssetCounts are the asset counts per package.
var AssetCounts = []int{1, 10, 50}

// AssetSize is the size of each generated asset.
const AssetSize = 64 << 10

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// backendFactory opens a backend in dir.
type backendFactory struct {
	name string
	open func(b *testing.B, dir string) storage.Backend
}

var backends = []backendFactory{
	{"fs", func(b *testing.B, dir string) storage.Backend {
		s, err := fsstore.New(fsstore.Config{Dir: dir, Logger: quietLogger})
		if err != nil {
			b.Fatalf("fsstore.New() error = %v", err)
		}
		return s
	}},
	{"kv", func(b *testing.B, dir string) storage.Backend {
		cfg := kvstore.DefaultConfig(dir)
		cfg.Logger = quietLogger
		s, err := kvstore.New(cfg)
		if err != nil {
			b.Fatalf("kvstore.New() error = %v", err)
		}
		return s
	}},
	{"sealed-fs", func(b *testing.B, dir string) storage.Backend {
		inner, err := fsstore.New(fsstore.Config{Dir: dir, Logger: quietLogger})
		if err != nil {
			b.Fatalf("fsstore.New() error = %v", err)
		}
		s, err := sealed.New(inner, []byte("rpsk_benchmark-secret"))
		if err != nil {
			b.Fatalf("sealed.New() error = %v", err)
		}
		return s
	}},
}

// capabilityOf adapts an opened backend to service.Capability.
type capabilityOf struct{ backend storage.Backend }

func (c capabilityOf) Supported() bool          { return true }
func (c capabilityOf) Err() error               { return nil }
func (c capabilityOf) Backend() storage.Backend { return c.backend }

func newRestorePoints(backend storage.Backend) *service.RestorePoints {
	return service.NewRestorePoints(capabilityOf{backend}, service.Config{
		MinCreateDuration: -1,
		Logger:            quietLogger,
	})
}

// newPackage builds a package with n random assets keyed like project.Dir
// keys them.
func newPackage(b *testing.B, n int) *domain.Package {
	b.Helper()
	pkg := &domain.Package{
		Main:   []byte(`{"targets":[],"meta":{"semver":"3.0.0"}}`),
		Assets: make(map[string][]byte, n),
	}
	for i := range n {
		data := make([]byte, AssetSize)
		if _, err := rand.Read(data); err != nil {
			b.Fatalf("rand.Read() error = %v", err)
		}
		name := fmt.Sprintf("costume-%d.png", i)
		pkg.Assets[project.AssetKey(name, data)] = data
	}
	return pkg
}

// reportMemory reports heap usage after a GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.HeapAlloc)/(1<<20), prefix+"_heap_MB")
}
