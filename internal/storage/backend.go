// Package storage defines the persistence capability used by restore points.
//
// A Backend stores three things: the manifest, one project blob per restore
// point, and deduplicated asset blobs shared between restore points.
// Implementations live in sub-packages (fsstore, kvstore) and are selected
// once at startup by the capability package; no caller branches on which
// implementation it holds.
package storage

import (
	"context"
	"errors"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
)

// Common errors
var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrClosed           = errors.New("backend closed")
	ErrSequenceConsumed = errors.New("key sequence already consumed")
)

// Backend persists the manifest, project blobs and asset blobs.
//
// Implementation requirements:
//   - Thread-safe: concurrent reads and writes must be safe
//   - Durable: a successful Put survives process restarts
//   - PutManifest is an atomic overwrite: readers see the old or the new
//     manifest, never a mix
//   - Deleting an absent key is not an error
type Backend interface {
	// Kind names the implementation ("fs", "kv").
	Kind() string

	// NewID allocates a collision-resistant restore point id.
	NewID(ctx context.Context) (string, error)

	// Manifest reads the manifest. An empty store yields an empty manifest.
	// Unparsable data returns an error matching domain.ErrCorruptedManifest.
	Manifest(ctx context.Context) (domain.Manifest, error)

	// PutManifest atomically replaces the manifest.
	PutManifest(ctx context.Context, m domain.Manifest) error

	// PutProject stores the main document of restore point id.
	PutProject(ctx context.Context, id string, data []byte) error

	// Project returns the main document of restore point id.
	// Returns ErrKeyNotFound if it is not stored.
	Project(ctx context.Context, id string) ([]byte, error)

	// DeleteProject removes the main document of restore point id.
	DeleteProject(ctx context.Context, id string) error

	// ProjectKeys enumerates the ids of all stored project blobs.
	ProjectKeys(ctx context.Context) *KeySeq

	// AssetKeys enumerates the keys of all stored asset blobs.
	AssetKeys(ctx context.Context) *KeySeq

	// PutAsset stores an asset blob. It is a no-op if key already exists.
	PutAsset(ctx context.Context, key string, data []byte) error

	// Asset returns an asset blob.
	// Returns ErrKeyNotFound if it is not stored.
	Asset(ctx context.Context, key string) ([]byte, error)

	// DeleteAsset removes an asset blob.
	DeleteAsset(ctx context.Context, key string) error

	// DeleteAll wipes the manifest and every blob.
	DeleteAll(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// IOError wraps a failed storage operation as domain.ErrTransientIO.
// Errors already carrying a domain code are returned unchanged.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrKeyNotFound) || domain.IsDomainError(err, "") {
		return err
	}
	return domain.ErrTransientIO.WithDetails(op).WithCause(err)
}
