package project

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
)

// assetDir is the archive folder holding asset entries.
const assetDir = "assets/"

// maxEntrySize bounds a single decompressed archive entry.
const maxEntrySize = 1 << 30

// WriteArchive writes pkg to w as a zip archive: the main document at
// project.json and each asset at assets/<key>. Entries are stored in key
// order with modTime so equal packages produce equal archives.
func WriteArchive(w io.Writer, pkg *domain.Package, modTime time.Time) error {
	if err := pkg.Validate(); err != nil {
		return err
	}
	zw := zip.NewWriter(w)

	if err := writeEntry(zw, domain.MainDocumentName, pkg.Main, modTime); err != nil {
		return err
	}
	for _, key := range pkg.AssetKeys() {
		if err := writeEntry(zw, assetDir+key, pkg.Assets[key], modTime); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, modTime time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: modTime,
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	return nil
}

// ReadArchive reads a package written by WriteArchive. Directory entries are
// skipped. An archive without project.json, or with an entry outside
// assets/, is rejected with domain.ErrInvalidArgument.
func ReadArchive(r io.ReaderAt, size int64) (*domain.Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails("not a zip archive").WithCause(err)
	}

	pkg := &domain.Package{Assets: make(map[string][]byte)}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(f.Name)

		var key string
		switch {
		case name == domain.MainDocumentName:
		case strings.HasPrefix(name, assetDir):
			key = strings.TrimPrefix(name, assetDir)
			if err := domain.ValidateKey(key); err != nil {
				return nil, fmt.Errorf("archive entry %s: %w", f.Name, err)
			}
		default:
			return nil, domain.ErrInvalidArgument.WithDetails("unexpected archive entry " + f.Name)
		}

		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if key == "" {
			pkg.Main = data
		} else {
			pkg.Assets[key] = data
		}
	}
	if pkg.Main == nil {
		return nil, domain.ErrInvalidArgument.WithDetails("archive has no " + domain.MainDocumentName)
	}
	return pkg, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntrySize {
		return nil, domain.ErrInvalidArgument.WithDetails("archive entry too large: " + f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("archive entry %s: %w", f.Name, err)
	}
	if len(data) > maxEntrySize {
		return nil, domain.ErrInvalidArgument.WithDetails("archive entry too large: " + f.Name)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}
