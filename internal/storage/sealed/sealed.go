// Package sealed encrypts restore point blobs at rest.
//
// Backend wraps another storage.Backend. Project and asset blobs are sealed
// with XChaCha20-Poly1305 under a key derived from a configured secret with
// HKDF-SHA256. The blob's storage key is bound as associated data, so a blob
// moved to another key fails to open. The manifest is stored as is.
//
// Sealed format: nonce (24 bytes) || ciphertext || tag (16 bytes).
package sealed

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
)

const (
	// MinSecretLength is the minimum secret length in bytes.
	MinSecretLength = 16

	keyInfo = "restorepoint sealed blobs v1"
)

// ErrSecretTooShort is returned by New for secrets under MinSecretLength.
var ErrSecretTooShort = fmt.Errorf("sealed: secret too short (minimum %d bytes)", MinSecretLength)

// Backend is a storage.Backend that seals blobs before handing them to the
// wrapped backend.
type Backend struct {
	storage.Backend
	aead cipher.AEAD
}

var _ storage.Backend = (*Backend)(nil)

// New wraps inner. The secret is not retained.
func New(inner storage.Backend, secret []byte) (*Backend, error) {
	if inner == nil {
		return nil, errors.New("sealed: inner backend is required")
	}
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("sealed: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealed: create cipher: %w", err)
	}
	return &Backend{Backend: inner, aead: aead}, nil
}

// Unwrap returns the wrapped backend.
func (b *Backend) Unwrap() storage.Backend { return b.Backend }

// PutProject seals data and stores it.
func (b *Backend) PutProject(ctx context.Context, id string, data []byte) error {
	sealed, err := b.seal(projectAD(id), data)
	if err != nil {
		return err
	}
	return b.Backend.PutProject(ctx, id, sealed)
}

// Project loads and opens the project blob.
func (b *Backend) Project(ctx context.Context, id string) ([]byte, error) {
	sealed, err := b.Backend.Project(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.open(projectAD(id), sealed)
}

// PutAsset seals data and stores it unless key already exists.
func (b *Backend) PutAsset(ctx context.Context, key string, data []byte) error {
	sealed, err := b.seal(assetAD(key), data)
	if err != nil {
		return err
	}
	return b.Backend.PutAsset(ctx, key, sealed)
}

// Asset loads and opens the asset blob.
func (b *Backend) Asset(ctx context.Context, key string) ([]byte, error) {
	sealed, err := b.Backend.Asset(ctx, key)
	if err != nil {
		return nil, err
	}
	return b.open(assetAD(key), sealed)
}

func (b *Backend) seal(ad, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, storage.IOError("generate nonce", err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, ad), nil
}

func (b *Backend) open(ad, sealed []byte) ([]byte, error) {
	ns := b.aead.NonceSize()
	if len(sealed) < ns+b.aead.Overhead() {
		return nil, domain.ErrCorruptedSnapshot.WithDetails("sealed blob truncated")
	}
	plaintext, err := b.aead.Open(make([]byte, 0, len(sealed)-ns-b.aead.Overhead()), sealed[:ns], sealed[ns:], ad)
	if err != nil {
		return nil, domain.ErrCorruptedSnapshot.WithDetails("sealed blob failed authentication")
	}
	return plaintext, nil
}

func projectAD(id string) []byte { return []byte("project/" + id) }

func assetAD(key string) []byte { return []byte("asset/" + key) }
