package fsstore

import (
	"encoding/json"
	"fmt"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
)

// manifestFile is the on-disk shape of restore-points.json.
type manifestFile struct {
	RestorePoints []manifestEntry `json:"restorePoints"`
}

// manifestEntry uses pointers so that missing fields are told apart from
// zero values. Type is optional: files written before restore points were
// typed hold only manual entries.
type manifestEntry struct {
	ID      *string   `json:"id"`
	Title   *string   `json:"title"`
	Created *int64    `json:"created"`
	Assets  *[]string `json:"assets"`
	Type    string    `json:"type,omitempty"`
}

// decodeManifest parses and validates manifest bytes. The result is either
// a fully valid manifest or an error matching domain.ErrCorruptedManifest.
func decodeManifest(data []byte) (domain.Manifest, error) {
	var file manifestFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, domain.ErrCorruptedManifest.WithCause(err)
	}
	if file.RestorePoints == nil {
		return nil, domain.ErrCorruptedManifest.WithDetails("missing restorePoints")
	}

	m := make(domain.Manifest, 0, len(file.RestorePoints))
	for i, e := range file.RestorePoints {
		if e.ID == nil || e.Title == nil || e.Created == nil || e.Assets == nil {
			return nil, domain.ErrCorruptedManifest.WithDetails(fmt.Sprintf("record %d: missing field", i))
		}
		typ := domain.Type(e.Type)
		if typ == "" {
			typ = domain.TypeManual
		}
		m = append(m, domain.Record{
			ID:        *e.ID,
			Title:     *e.Title,
			CreatedAt: *e.Created,
			Type:      typ,
			Assets:    *e.Assets,
		})
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeManifest(m domain.Manifest) ([]byte, error) {
	file := manifestFile{RestorePoints: make([]manifestEntry, 0, len(m))}
	for _, r := range m {
		assets := r.Assets
		if assets == nil {
			assets = []string{}
		}
		file.RestorePoints = append(file.RestorePoints, manifestEntry{
			ID:      &r.ID,
			Title:   &r.Title,
			Created: &r.CreatedAt,
			Assets:  &assets,
			Type:    string(r.Type),
		})
	}
	data, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("fsstore: marshal manifest: %w", err)
	}
	return data, nil
}
