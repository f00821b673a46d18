// Package kvstore implements the transactional key-value backend for restore
// points on Badger v3.
//
// Tables are key prefixes in a single database:
//
//	m/<uint64 BE>  restore point metadata, JSON {title,created,assets,type}
//	d/<uint64 BE>  main document
//	a/<key>        asset blob
//	s/meta         id sequence
//
// Restore point ids are the generated numeric metadata keys rendered in
// decimal. The manifest is read newest first by iterating the metadata table
// in reverse key order.
package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/storage"
)

// Kind identifies this backend.
const Kind = "kv"

var (
	prefixMeta    = []byte("m/")
	prefixData    = []byte("d/")
	prefixAsset   = []byte("a/")
	keySequence   = []byte("s/meta")
	errBadID      = domain.ErrInvalidArgument.WithDetails("id is not a generated numeric key")
	errNotInStore = errors.New("kvstore: metadata key without id")
)

// meta is the value stored under m/<id>.
type meta struct {
	Title   string   `json:"title"`
	Created int64    `json:"created"`
	Assets  []string `json:"assets"`
	Type    string   `json:"type"`
}

// Store is a storage.Backend over Badger.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	cfg    Config
	logger *slog.Logger

	lastGCTime       atomic.Int64  // Unix milliseconds
	gcBytesReclaimed atomic.Uint64 // Total bytes reclaimed by GC
	metrics          *storeMetrics

	closed atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
}

var _ storage.Backend = (*Store)(nil)

// New opens (or creates) the database in cfg.Dir.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("kvstore: dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SequenceBandwidth == 0 {
		cfg.SequenceBandwidth = 16
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: cfg.Logger}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	if cfg.NumLevelZeroTables > 0 {
		opts.NumLevelZeroTables = cfg.NumLevelZeroTables
	}
	if cfg.NumLevelZeroTablesStall > 0 {
		opts.NumLevelZeroTablesStall = cfg.NumLevelZeroTablesStall
	}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open db: %w", err)
	}
	seq, err := db.GetSequence(keySequence, cfg.SequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: open sequence: %w", err)
	}

	s := &Store{
		db:     db,
		seq:    seq,
		cfg:    cfg,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go s.gcLoop()

	cfg.Logger.Info("kv store opened",
		"dir", cfg.Dir,
		"sync_writes", cfg.SyncWrites,
		"gc_interval", cfg.GCInterval)

	return s, nil
}

// Probe reports whether a Badger database can be opened in dir.
func Probe(dir string) error {
	cfg := DefaultConfig(dir)
	cfg.Logger = slog.New(slog.DiscardHandler)
	s, err := New(cfg)
	if err != nil {
		return err
	}
	return s.Close()
}

// Kind returns "kv".
func (s *Store) Kind() string { return Kind }

// NewID leases the next number from the metadata sequence.
func (s *Store) NewID(ctx context.Context) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	n, err := s.seq.Next()
	if err != nil {
		return "", storage.IOError("next id", err)
	}
	// Sequences start at zero; ids start at one.
	return strconv.FormatUint(n+1, 10), nil
}

// Manifest reads the metadata table, newest first.
func (s *Store) Manifest(ctx context.Context) (domain.Manifest, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	m := domain.Manifest{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixMeta
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekLast(prefixMeta)); it.Valid(); it.Next() {
			item := it.Item()
			id, ok := decodeID(item.Key(), prefixMeta)
			if !ok {
				return domain.ErrCorruptedManifest.WithCause(errNotInStore)
			}
			var v meta
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if err != nil {
				return domain.ErrCorruptedManifest.WithDetails("record " + id).WithCause(err)
			}
			typ := domain.Type(v.Type)
			if typ == "" {
				typ = domain.TypeManual
			}
			assets := v.Assets
			if assets == nil {
				assets = []string{}
			}
			m = append(m, domain.Record{
				ID:        id,
				Title:     v.Title,
				CreatedAt: v.Created,
				Type:      typ,
				Assets:    assets,
			})
		}
		return nil
	})
	if err != nil {
		return nil, storage.IOError("read manifest", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// PutManifest rewrites the metadata table in one transaction.
func (s *Store) PutManifest(ctx context.Context, m domain.Manifest) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	keys := make(map[string][]byte, len(m))
	values := make(map[string][]byte, len(m))
	for _, r := range m {
		key, err := recordKey(prefixMeta, r.ID)
		if err != nil {
			return err
		}
		val, err := json.Marshal(meta{
			Title:   r.Title,
			Created: r.CreatedAt,
			Assets:  r.Assets,
			Type:    string(r.Type),
		})
		if err != nil {
			return fmt.Errorf("kvstore: marshal record %s: %w", r.ID, err)
		}
		keys[r.ID] = key
		values[r.ID] = val
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		stale, err := collectKeys(txn, prefixMeta)
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for id, key := range keys {
			if err := txn.Set(key, values[id]); err != nil {
				return err
			}
		}
		return nil
	})
	return storage.IOError("write manifest", err)
}

// PutProject stores d/<id>.
func (s *Store) PutProject(ctx context.Context, id string, data []byte) error {
	key, err := s.checkID(ctx, id)
	if err != nil {
		return err
	}
	return storage.IOError("write project "+id, s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}))
}

// Project reads d/<id>.
func (s *Store) Project(ctx context.Context, id string) ([]byte, error) {
	key, err := s.checkID(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.get(key)
	return data, storage.IOError("read project "+id, err)
}

// DeleteProject removes d/<id>.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	key, err := s.checkID(ctx, id)
	if err != nil {
		return err
	}
	return storage.IOError("delete project "+id, s.delete(key))
}

// ProjectKeys lists the ids in the document table.
func (s *Store) ProjectKeys(ctx context.Context) *storage.KeySeq {
	return s.keys(ctx, prefixData, func(k []byte) (string, bool) {
		return decodeID(k, prefixData)
	})
}

// AssetKeys lists the asset table.
func (s *Store) AssetKeys(ctx context.Context) *storage.KeySeq {
	return s.keys(ctx, prefixAsset, func(k []byte) (string, bool) {
		return string(k[len(prefixAsset):]), true
	})
}

// PutAsset stores a/<key> unless it already exists.
func (s *Store) PutAsset(ctx context.Context, key string, data []byte) error {
	if err := s.checkKey(ctx, key); err != nil {
		return err
	}
	k := assetKey(key)
	return storage.IOError("write asset "+key, s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, data)
	}))
}

// Asset reads a/<key>.
func (s *Store) Asset(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkKey(ctx, key); err != nil {
		return nil, err
	}
	data, err := s.get(assetKey(key))
	return data, storage.IOError("read asset "+key, err)
}

// DeleteAsset removes a/<key>.
func (s *Store) DeleteAsset(ctx context.Context, key string) error {
	if err := s.checkKey(ctx, key); err != nil {
		return err
	}
	return storage.IOError("delete asset "+key, s.delete(assetKey(key)))
}

// DeleteAll drops the three tables. The id sequence is kept so ids are
// never reused.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.db.DropPrefix(prefixMeta, prefixData, prefixAsset); err != nil {
		return storage.IOError("drop tables", err)
	}
	s.logger.Info("restore point storage wiped", "dir", s.cfg.Dir)
	return nil
}

// GC runs value-log garbage collection until nothing more can be rewritten.
// Returns bytes reclaimed (approximate).
func (s *Store) GC(ctx context.Context) (uint64, error) {
	startTime := time.Now()

	var totalReclaimed uint64
	for {
		if err := ctx.Err(); err != nil {
			return totalReclaimed, err
		}
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return totalReclaimed, fmt.Errorf("kvstore: value log gc: %w", err)
		}
		// Badger does not report the reclaimed size; count one file per round.
		totalReclaimed += uint64(s.db.Opts().ValueLogFileSize)
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcBytesReclaimed.Add(totalReclaimed)
	if s.metrics != nil && totalReclaimed > 0 {
		s.metrics.gcReclaimed.Add(float64(totalReclaimed))
	}

	s.logger.Debug("value log gc completed",
		"bytes_reclaimed", totalReclaimed,
		"elapsed", time.Since(startTime))

	return totalReclaimed, nil
}

// Stats returns database size statistics.
func (s *Store) Stats() Stats {
	lsm, vlog := s.db.Size()
	return Stats{
		LSMSize:          uint64(lsm),
		ValueLogSize:     uint64(vlog),
		TotalSize:        uint64(lsm + vlog),
		LastGCTime:       s.lastGCTime.Load(),
		GCBytesReclaimed: s.gcBytesReclaimed.Load(),
	}
}

// Stats contains storage statistics.
type Stats struct {
	LSMSize          uint64
	ValueLogSize     uint64
	TotalSize        uint64
	LastGCTime       int64 // Unix milliseconds
	GCBytesReclaimed uint64
}

// Close stops the background loops, releases the sequence and closes the
// database. Calling Close more than once is safe.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("shutting down kv store")

	close(s.stopCh)
	<-s.doneCh

	relErr := s.seq.Release()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("kvstore: close db: %w", err)
	}
	if relErr != nil {
		return fmt.Errorf("kvstore: release sequence: %w", relErr)
	}
	return nil
}

// gcLoop runs periodic value-log garbage collection.
func (s *Store) gcLoop() {
	defer close(s.doneCh)

	interval, err := time.ParseDuration(s.cfg.GCInterval)
	if err != nil || interval <= 0 {
		s.logger.Warn("invalid gc_interval, using default 10m", "value", s.cfg.GCInterval)
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.GC(ctx); err != nil {
				s.logger.Error("auto value log gc failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
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

func (s *Store) checkID(ctx context.Context, id string) ([]byte, error) {
	key, err := recordKey(prefixData, id)
	if err != nil {
		return nil, err
	}
	return key, s.check(ctx)
}

func (s *Store) get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		// Badger returns nil for an empty value.
		value = []byte{}
	}
	return value, nil
}

func (s *Store) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// keys iterates a table lazily inside a read transaction.
func (s *Store) keys(ctx context.Context, prefix []byte, decode func([]byte) (string, bool)) *storage.KeySeq {
	if err := s.check(ctx); err != nil {
		return storage.FailedKeySeq(err)
	}
	return storage.NewKeySeq(func(yield func(string) bool) error {
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				key, ok := decode(it.Item().Key())
				if !ok {
					continue
				}
				if !yield(key) {
					return nil
				}
			}
			return nil
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return storage.IOError("list keys", err)
	})
}

// collectKeys copies every key under prefix.
func collectKeys(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// recordKey maps a decimal id to prefix + 8-byte big-endian number.
// Only canonical decimal renderings are accepted so each id has one key.
func recordKey(prefix []byte, id string) ([]byte, error) {
	if err := domain.ValidateKey(id); err != nil {
		return nil, err
	}
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || strconv.FormatUint(n, 10) != id {
		return nil, errBadID.WithCause(fmt.Errorf("id %q", id))
	}
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], n)
	return key, nil
}

func decodeID(key, prefix []byte) (string, bool) {
	if len(key) != len(prefix)+8 {
		return "", false
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(key[len(prefix):]), 10), true
}

func assetKey(key string) []byte {
	k := make([]byte, 0, len(prefixAsset)+len(key))
	k = append(k, prefixAsset...)
	return append(k, key...)
}

// seekLast returns a key sorting after every key under prefix, the start
// point for a reverse prefix scan.
func seekLast(prefix []byte) []byte {
	k := make([]byte, 0, len(prefix)+9)
	k = append(k, prefix...)
	return append(k, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
}
