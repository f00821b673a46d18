// Package fsstore implements the hierarchical file backend for restore points.
//
// Directory structure:
//
//	root/
//	  .restorepoint.lock    held exclusively while a Store is open
//	  restore-points.json   {"restorePoints":[{"id","title","created","assets","type"}]}
//	  projects/<id>         main document of each restore point
//	  assets/<key>          deduplicated asset blobs
//
// Every file is written to a temporary name, synced and renamed into place,
// so a crash leaves either the old or the new content. Leftover temporary
// files are reported by the key listings and removed by garbage collection.
package fsstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
)

const (
	ManifestName     = "restore-points.json"
	ProjectDirectory = "projects"
	AssetDirectory   = "assets"

	// Kind identifies this backend.
	Kind = "fs"

	tempPattern  = ".*.tmp"
	readDirBatch = 64
	dirPerm      = 0750
	filePerm     = 0640
)

// Config configures the file store.
type Config struct {
	// Dir is the root directory for all restore point data.
	Dir string

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Store is a storage.Backend over a directory tree.
type Store struct {
	root     string
	projects string
	assets   string
	logger   *slog.Logger
	lock     *dirLock

	idMu    sync.Mutex
	entropy io.Reader

	closed atomic.Bool
}

var _ storage.Backend = (*Store)(nil)

// New creates the directory layout under cfg.Dir, locks it and returns the
// store. A directory already held by another Store fails with ErrLocked, so
// manifest updates from two processes never interleave.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("fsstore: dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Store{
		root:     cfg.Dir,
		projects: filepath.Join(cfg.Dir, ProjectDirectory),
		assets:   filepath.Join(cfg.Dir, AssetDirectory),
		logger:   cfg.Logger,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return nil, fmt.Errorf("fsstore: create dir: %w", err)
	}
	lock, err := acquireLock(s.root)
	if err != nil {
		return nil, err
	}
	s.lock = lock
	if err := s.ensureLayout(); err != nil {
		lock.release()
		return nil, err
	}
	return s, nil
}

// Probe reports whether dir can host a file store: the directory must be
// creatable and a file inside it writable and removable.
func Probe(dir string) error {
	if dir == "" {
		return fmt.Errorf("fsstore: dir is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("fsstore: create dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("fsstore: create probe file: %w", err)
	}
	name := f.Name()
	_, werr := f.Write([]byte("probe"))
	cerr := f.Close()
	rerr := os.Remove(name)
	if err := errors.Join(werr, cerr, rerr); err != nil {
		return fmt.Errorf("fsstore: probe: %w", err)
	}
	return nil
}

func (s *Store) ensureLayout() error {
	for _, dir := range []string{s.root, s.projects, s.assets} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("fsstore: create dir: %w", err)
		}
	}
	return nil
}

// Kind returns "fs".
func (s *Store) Kind() string { return Kind }

// Dir returns the root directory.
func (s *Store) Dir() string { return s.root }

// NewID returns a ULID: millisecond timestamp plus random entropy,
// monotonic within the same millisecond.
func (s *Store) NewID(ctx context.Context) (string, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), s.entropy)
	if err != nil {
		return "", storage.IOError("generate id", err)
	}
	return id.String(), nil
}

// Manifest reads and validates restore-points.json.
func (s *Store) Manifest(ctx context.Context) (domain.Manifest, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, ManifestName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Manifest{}, nil
		}
		return nil, storage.IOError("read manifest", err)
	}
	return decodeManifest(data)
}

// PutManifest atomically replaces restore-points.json.
func (s *Store) PutManifest(ctx context.Context, m domain.Manifest) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	data, err := encodeManifest(m)
	if err != nil {
		return err
	}
	return storage.IOError("write manifest", writeFileAtomic(s.root, ManifestName, data))
}

// PutProject stores projects/<id>.
func (s *Store) PutProject(ctx context.Context, id string, data []byte) error {
	if err := s.checkKey(ctx, id); err != nil {
		return err
	}
	return storage.IOError("write project "+id, writeFileAtomic(s.projects, id, data))
}

// Project reads projects/<id>.
func (s *Store) Project(ctx context.Context, id string) ([]byte, error) {
	if err := s.checkKey(ctx, id); err != nil {
		return nil, err
	}
	return readBlob(filepath.Join(s.projects, id), "read project "+id)
}

// DeleteProject removes projects/<id>.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if err := s.checkKey(ctx, id); err != nil {
		return err
	}
	return storage.IOError("delete project "+id, removeFile(filepath.Join(s.projects, id)))
}

// ProjectKeys lists projects/.
func (s *Store) ProjectKeys(ctx context.Context) *storage.KeySeq {
	return s.keys(ctx, s.projects)
}

// AssetKeys lists assets/.
func (s *Store) AssetKeys(ctx context.Context) *storage.KeySeq {
	return s.keys(ctx, s.assets)
}

// PutAsset stores assets/<key> unless it already exists.
func (s *Store) PutAsset(ctx context.Context, key string, data []byte) error {
	if err := s.checkKey(ctx, key); err != nil {
		return err
	}
	path := filepath.Join(s.assets, key)
	if _, err := os.Lstat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return storage.IOError("stat asset "+key, err)
	}
	return storage.IOError("write asset "+key, writeFileAtomic(s.assets, key, data))
}

// Asset reads assets/<key>.
func (s *Store) Asset(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkKey(ctx, key); err != nil {
		return nil, err
	}
	return readBlob(filepath.Join(s.assets, key), "read asset "+key)
}

// DeleteAsset removes assets/<key>.
func (s *Store) DeleteAsset(ctx context.Context, key string) error {
	if err := s.checkKey(ctx, key); err != nil {
		return err
	}
	return storage.IOError("delete asset "+key, removeFile(filepath.Join(s.assets, key)))
}

// DeleteAll removes the manifest and both blob directories, then recreates
// the empty layout.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := removeFile(filepath.Join(s.root, ManifestName)); err != nil {
		return storage.IOError("delete manifest", err)
	}
	for _, dir := range []string{s.projects, s.assets} {
		if err := os.RemoveAll(dir); err != nil {
			return storage.IOError("delete "+filepath.Base(dir), err)
		}
	}
	s.logger.Info("restore point storage wiped", "dir", s.root)
	return storage.IOError("recreate layout", s.ensureLayout())
}

// Close marks the store closed and releases the directory lock.
// Calling Close more than once is safe.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.lock.release()
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return ctx.Err()
}

func (s *Store) checkKey(ctx context.Context, key string) error {
	if err := domain.ValidateKey(key); err != nil {
		return err
	}
	return s.check(ctx)
}

// keys walks a directory in batches, yielding regular file names.
func (s *Store) keys(ctx context.Context, dir string) *storage.KeySeq {
	if err := s.check(ctx); err != nil {
		return storage.FailedKeySeq(err)
	}
	return storage.NewKeySeq(func(yield func(string) bool) error {
		f, err := os.Open(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return storage.IOError("open "+filepath.Base(dir), err)
		}
		defer f.Close()

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries, err := f.ReadDir(readDirBatch)
			for _, e := range entries {
				if !e.Type().IsRegular() {
					continue
				}
				if !yield(e.Name()) {
					return nil
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return storage.IOError("list "+filepath.Base(dir), err)
			}
		}
	})
}

func readBlob(path, op string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, storage.IOError(op, err)
	}
	return data, nil
}

func removeFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// writeFileAtomic writes data to dir/name via a synced temporary file.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports syncing a directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
