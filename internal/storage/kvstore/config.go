package kvstore

import "log/slog"

// Config configures the Badger-backed store.
type Config struct {
	// Dir is the Badger data directory.
	Dir string

	// GCInterval is the interval between automatic value-log GC runs.
	// Default: 10m
	GCInterval string

	// GCThreshold is the discard ratio passed to RunValueLogGC (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 64MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// NumLevelZeroTables is the number of Level 0 tables before compaction.
	// Default: 5
	NumLevelZeroTables int

	// NumLevelZeroTablesStall is the number of Level 0 tables that triggers write stall.
	// Default: 10
	NumLevelZeroTablesStall int

	// SyncWrites fsyncs after each write. Restore points have no other
	// durability layer, so this defaults to true.
	SyncWrites bool

	// SequenceBandwidth is how many ids are leased from the sequence at once.
	// Default: 16
	SequenceBandwidth uint64

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                     dir,
		GCInterval:              "10m",
		GCThreshold:             0.5,
		CacheSize:               16 << 20, // 16MB
		ValueLogFileSize:        64 << 20, // 64MB
		NumMemtables:            2,
		NumLevelZeroTables:      5,
		NumLevelZeroTablesStall: 10,
		SyncWrites:              true,
		SequenceBandwidth:       16,
	}
}
