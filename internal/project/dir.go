// Package project maps documents kept as plain directories to restore point
// packages and back.
//
// A document directory holds the main document as project.json and its
// assets as the other top-level regular files. Dot files and directories
// are ignored.
package project

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
)

const (
	hashLen   = 32 // hex of a 128-bit murmur3 sum
	keySep    = '_'
	filePerm  = 0640
	dirPerm   = 0750
	tmpSuffix = ".tmp"
)

// AssetKey returns the storage key for an asset file: the hex murmur3-128
// sum of its content, an underscore, and its file name. Identical names
// with different content get different keys, so deduplication by key never
// serves stale bytes.
func AssetKey(name string, data []byte) string {
	h1, h2 := murmur3.Sum128(data)
	var sum [16]byte
	for i := 0; i < 8; i++ {
		sum[i] = byte(h1 >> (56 - 8*i))
		sum[8+i] = byte(h2 >> (56 - 8*i))
	}
	return hex.EncodeToString(sum[:]) + string(keySep) + name
}

// AssetName returns the file name encoded in an asset key. Keys without a
// content-hash prefix, such as those of the legacy store, are file names
// already.
func AssetName(key string) string {
	if len(key) > hashLen && key[hashLen] == keySep {
		if _, err := hex.DecodeString(key[:hashLen]); err == nil {
			return key[hashLen+1:]
		}
	}
	return key
}

// Dir serializes and deserializes a document directory.
type Dir struct {
	root   string
	title  string
	logger *slog.Logger
}

// DirOption configures a Dir.
type DirOption func(*Dir)

// WithTitle sets the title of automatic restore points.
// Default: the directory's base name.
func WithTitle(title string) DirOption {
	return func(d *Dir) { d.title = title }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DirOption {
	return func(d *Dir) { d.logger = logger }
}

// NewDir returns a Dir rooted at root.
func NewDir(root string, opts ...DirOption) *Dir {
	d := &Dir{
		root:   root,
		title:  filepath.Base(root),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns the document directory.
func (d *Dir) Root() string { return d.root }

// Title returns the title used for automatic restore points.
func (d *Dir) Title() string { return d.title }

// Serialize reads the directory into a package.
func (d *Dir) Serialize(ctx context.Context) (*domain.Package, error) {
	main, err := os.ReadFile(filepath.Join(d.root, domain.MainDocumentName))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", domain.MainDocumentName, err)
	}

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("read document dir: %w", err)
	}

	pkg := &domain.Package{Main: main, Assets: make(map[string][]byte)}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if !e.Type().IsRegular() || ignored(name) || name == domain.MainDocumentName {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.root, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // removed while reading
			}
			return nil, fmt.Errorf("read asset %s: %w", name, err)
		}
		key := AssetKey(name, data)
		if err := domain.ValidateKey(key); err != nil {
			return nil, fmt.Errorf("asset %s: %w", name, err)
		}
		pkg.Assets[key] = data
	}
	return pkg, nil
}

// Deserialize replaces the directory contents with pkg. Files not in the
// package are removed; dot files and subdirectories are left alone.
func (d *Dir) Deserialize(ctx context.Context, pkg *domain.Package) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.root, dirPerm); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	keep := map[string]struct{}{domain.MainDocumentName: {}}
	for _, key := range pkg.AssetKeys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := AssetName(key)
		if err := domain.ValidateKey(name); err != nil || ignored(name) || name == domain.MainDocumentName {
			return domain.ErrInvalidArgument.WithDetails("asset file name " + name)
		}
		if err := writeFile(d.root, name, pkg.Assets[key]); err != nil {
			return err
		}
		keep[name] = struct{}{}
	}
	if err := writeFile(d.root, domain.MainDocumentName, pkg.Main); err != nil {
		return err
	}

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return fmt.Errorf("read document dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || ignored(e.Name()) {
			continue
		}
		if _, ok := keep[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(d.root, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}

	d.logger.Debug("document restored", "dir", d.root, "assets", len(pkg.Assets))
	return nil
}

func ignored(name string) bool {
	return strings.HasPrefix(name, ".")
}

// writeFile replaces dir/name through a temporary dot file.
func writeFile(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*"+tmpSuffix)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
