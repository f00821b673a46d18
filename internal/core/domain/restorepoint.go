package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Default limits for restore points.
const (
	// MaxRetained is the default retention cap for the manifest.
	MaxRetained = 5

	// MainDocumentName is the package entry holding the main document.
	MainDocumentName = "project.json"

	// MaxKeyLength bounds ids and asset keys so they, and the temporary
	// names derived from them, fit in a file name.
	MaxKeyLength = 200
)

// Type identifies how a restore point was created.
type Type string

const (
	TypeAutomatic Type = "automatic"
	TypeManual    Type = "manual"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t == TypeAutomatic || t == TypeManual
}

// String returns the type name.
func (t Type) String() string {
	return string(t)
}

// Record describes one retained restore point.
type Record struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	CreatedAt int64    `json:"created"` // Unix seconds
	Type      Type     `json:"type"`
	Assets    []string `json:"assets"`
}

// Validate checks the record against the manifest schema.
func (r *Record) Validate() error {
	if err := ValidateKey(r.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if !r.Type.Valid() {
		return ErrInvalidArgument.WithDetails("unknown type " + string(r.Type))
	}
	if r.CreatedAt < 0 {
		return ErrInvalidArgument.WithDetails("negative created time")
	}
	for _, key := range r.Assets {
		if err := ValidateKey(key); err != nil {
			return fmt.Errorf("asset %q: %w", key, err)
		}
	}
	return nil
}

// References reports whether the record refers to the asset key.
func (r *Record) References(key string) bool {
	return slices.Contains(r.Assets, key)
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	r.Assets = slices.Clone(r.Assets)
	return r
}

// Manifest is the ordered directory of retained restore points, newest first.
type Manifest []Record

// Find returns the record with the given id.
func (m Manifest) Find(id string) (Record, bool) {
	for _, r := range m {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Without returns a copy of the manifest with the given id removed.
func (m Manifest) Without(id string) Manifest {
	out := make(Manifest, 0, len(m))
	for _, r := range m {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// Trim drops records from the tail until at most max remain.
// The dropped (oldest) records are returned.
func (m Manifest) Trim(max int) (Manifest, Manifest) {
	if max < 0 || len(m) <= max {
		return m, nil
	}
	return m[:max], m[max:]
}

// IDs returns the set of record ids.
func (m Manifest) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(m))
	for _, r := range m {
		ids[r.ID] = struct{}{}
	}
	return ids
}

// AssetRefs returns the union of all asset keys referenced by the manifest.
func (m Manifest) AssetRefs() map[string]struct{} {
	refs := make(map[string]struct{})
	for _, r := range m {
		for _, key := range r.Assets {
			refs[key] = struct{}{}
		}
	}
	return refs
}

// Validate checks every record and rejects duplicate ids.
// A manifest is either entirely valid or rejected as a whole.
func (m Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m))
	for i := range m {
		if err := m[i].Validate(); err != nil {
			return ErrCorruptedManifest.WithDetails(fmt.Sprintf("record %d", i)).WithCause(err)
		}
		if _, dup := seen[m[i].ID]; dup {
			return ErrCorruptedManifest.WithDetails("duplicate id " + m[i].ID)
		}
		seen[m[i].ID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy of the manifest.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for i, r := range m {
		out[i] = r.Clone()
	}
	return out
}

// Package is a serialized document: the main document plus named assets.
type Package struct {
	Main   []byte
	Assets map[string][]byte
}

// AssetKeys returns the package asset keys in sorted order.
func (p *Package) AssetKeys() []string {
	keys := make([]string, 0, len(p.Assets))
	for k := range p.Assets {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Validate checks that the package can be stored.
func (p *Package) Validate() error {
	if p == nil {
		return ErrInvalidArgument.WithDetails("nil package")
	}
	if p.Main == nil {
		return ErrInvalidArgument.WithDetails("package has no main document")
	}
	for key := range p.Assets {
		if err := ValidateKey(key); err != nil {
			return fmt.Errorf("asset %q: %w", key, err)
		}
	}
	return nil
}

// ValidateKey checks that an id or asset key is safe to use as a storage key
// and as a file name.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return ErrInvalidArgument.WithDetails("empty key")
	case len(key) > MaxKeyLength:
		return ErrInvalidArgument.WithDetails("key too long")
	case key == "." || key == "..":
		return ErrInvalidArgument.WithDetails("reserved key " + key)
	case strings.ContainsAny(key, "/\\\x00"):
		return ErrInvalidArgument.WithDetails("key contains a path separator")
	}
	return nil
}
