// Package legacy reads the previous-generation autosave store.
//
// The old generation kept one document in an SQLite database as a raw
// key-indexed table:
//
//	CREATE TABLE project (key TEXT PRIMARY KEY, data BLOB)
//
// Each row is one file of the document package. The row keyed
// "project.json" is the main document; every other row is an asset.
// The store is only ever read here.
//
// Usage:
//
//	src, err := legacy.Open("autosave.db")
//	pkg, err := src.Load(ctx)
package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/yndnr/restorepoint-go/internal/core/domain"
)

// TableName is the key-indexed table holding the document files.
const TableName = "project"

const schema = `CREATE TABLE IF NOT EXISTS project (key TEXT PRIMARY KEY, data BLOB)`

type config struct {
	driver      string
	busyTimeout int
	create      bool
}

func defaults() config {
	return config{
		driver:      "sqlite",
		busyTimeout: 5_000,
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 5000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithCreate opens the database read-write, creating the file and the
// project table if missing. Without it the store is opened read-only and a
// missing file is reported as domain.ErrMigration.
func WithCreate() Option { return func(c *config) { c.create = true } }

// Source is an opened legacy store.
type Source struct {
	db   *sql.DB
	path string
}

// Open opens the legacy database at path.
func Open(path string, opts ...Option) (*Source, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	if path == "" {
		return nil, domain.ErrMigration.WithDetails("no legacy store configured")
	}

	if !cfg.create {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, domain.ErrMigration.WithDetails("legacy store does not exist")
			}
			return nil, domain.ErrMigration.WithCause(err)
		}
	}

	db, err := sql.Open(cfg.driver, dsn(path, cfg.create))
	if err != nil {
		return nil, fmt.Errorf("legacy: open: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout)); err != nil {
		db.Close()
		return nil, domain.ErrMigration.WithDetails("unreadable legacy store").WithCause(err)
	}
	if cfg.create {
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("legacy: exec schema: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, domain.ErrMigration.WithDetails("unreadable legacy store").WithCause(err)
	}

	return &Source{db: db, path: path}, nil
}

func dsn(path string, writable bool) string {
	mode := "ro"
	if writable {
		mode = "rwc"
	}
	u := url.URL{Scheme: "file", Opaque: path, RawQuery: "mode=" + mode}
	return u.String()
}

// Path returns the database path.
func (s *Source) Path() string { return s.path }

// Load reads every row into a package. It fails with domain.ErrMigration if
// the table is absent or holds no main document.
func (s *Source) Load(ctx context.Context) (domain.Package, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, TableName).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Package{}, domain.ErrMigration.WithDetails("table " + TableName + " does not exist")
	}
	if err != nil {
		return domain.Package{}, domain.ErrMigration.WithCause(err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, data FROM project ORDER BY key`)
	if err != nil {
		return domain.Package{}, domain.ErrMigration.WithCause(err)
	}
	defer rows.Close()

	pkg := domain.Package{Assets: make(map[string][]byte)}
	for rows.Next() {
		var (
			key  string
			data []byte
		)
		if err := rows.Scan(&key, &data); err != nil {
			return domain.Package{}, domain.ErrMigration.WithCause(err)
		}
		if data == nil {
			data = []byte{}
		}
		if key == domain.MainDocumentName {
			pkg.Main = data
			continue
		}
		pkg.Assets[key] = data
	}
	if err := rows.Err(); err != nil {
		return domain.Package{}, domain.ErrMigration.WithCause(err)
	}

	if pkg.Main == nil {
		return domain.Package{}, domain.ErrMigration.WithDetails("could not find " + domain.MainDocumentName)
	}
	return pkg, nil
}

// Put writes one file row. The source must have been opened WithCreate.
func (s *Source) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO project (key, data) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data`, key, data)
	if err != nil {
		return fmt.Errorf("legacy: put %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *Source) Close() error {
	return s.db.Close()
}

// File is a legacy store path that is opened only for the duration of each
// Load, so a long-running process does not hold the database.
type File string

// Load opens the store, reads it and closes it again.
func (f File) Load(ctx context.Context) (domain.Package, error) {
	src, err := Open(string(f))
	if err != nil {
		return domain.Package{}, err
	}
	defer src.Close()
	return src.Load(ctx)
}
