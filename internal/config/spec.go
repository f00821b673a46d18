package config

import "time"

// Config is the root configuration shared by restorepointd and
// restorepoint-cli.
type Config struct {
	Storage   StorageSection   `koanf:"storage" yaml:"storage" json:"storage"`
	Scheduler SchedulerSection `koanf:"scheduler" yaml:"scheduler" json:"scheduler"`
	Document  DocumentSection  `koanf:"document" yaml:"document" json:"document"`
	Legacy    LegacySection    `koanf:"legacy" yaml:"legacy" json:"legacy"`
	HTTP      HTTPSection      `koanf:"http" yaml:"http" json:"http"`
	Log       LogSection       `koanf:"log" yaml:"log" json:"log"`
}

// StorageSection configures where restore points are kept.
type StorageSection struct {
	// Backend is "auto", "fs" or "kv".
	Backend string `koanf:"backend" yaml:"backend" json:"backend"`

	// Dir is the storage root.
	Dir string `koanf:"dir" yaml:"dir" json:"dir"`

	// MaxRetained is the number of restore points kept.
	MaxRetained int `koanf:"max_retained" yaml:"max_retained" json:"max_retained"`

	// SealSecret enables encryption of stored blobs when set.
	SealSecret string `koanf:"seal_secret" yaml:"seal_secret" json:"seal_secret"`
}

// SchedulerSection configures automatic restore points.
type SchedulerSection struct {
	// Interval is the quiet period after a change before an automatic
	// restore point is taken.
	Interval time.Duration `koanf:"interval" yaml:"interval" json:"interval"`

	// MinCreateDuration pads each create. Zero disables padding.
	MinCreateDuration time.Duration `koanf:"min_create_duration" yaml:"min_create_duration" json:"min_create_duration"`
}

// DocumentSection configures the document being protected.
type DocumentSection struct {
	// Dir is the document directory.
	Dir string `koanf:"dir" yaml:"dir" json:"dir"`
}

// LegacySection configures the previous-generation autosave store.
type LegacySection struct {
	// Path is the SQLite database file. Empty disables legacy loading.
	Path string `koanf:"path" yaml:"path" json:"path"`
}

// HTTPSection configures the restorepointd HTTP endpoint.
type HTTPSection struct {
	// Addr is the listen address of the API and /metrics. Empty disables
	// both.
	Addr string `koanf:"addr" yaml:"addr" json:"addr"`

	// RateLimit is the per-client API request rate. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit" json:"rate_limit"`

	// TrustProxy keys the rate limit on forwarding headers instead of the
	// connection address.
	TrustProxy bool `koanf:"trust_proxy" yaml:"trust_proxy" json:"trust_proxy"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"`
}
