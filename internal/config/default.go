package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/core/service"
)

// Default configuration values.
const (
	DefaultBackend = "auto"

	DefaultInterval          = service.DefaultInterval
	DefaultMinCreateDuration = service.DefaultMinCreateDuration

	DefaultRateLimit = 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// DefaultStorageDir returns the per-user storage root, falling back to a
// directory under the working directory when the cache dir is unknown.
func DefaultStorageDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "restorepoint")
	}
	return ".restorepoint"
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			Backend:     DefaultBackend,
			Dir:         DefaultStorageDir(),
			MaxRetained: domain.MaxRetained,
		},
		Scheduler: SchedulerSection{
			Interval:          DefaultInterval,
			MinCreateDuration: DefaultMinCreateDuration,
		},
		Document: DocumentSection{
			Dir: ".",
		},
		HTTP: HTTPSection{
			RateLimit: DefaultRateLimit,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// ServiceMinCreateDuration converts the configured padding to the value
// service.Config expects, where zero means the default and negative
// disables padding.
func (s SchedulerSection) ServiceMinCreateDuration() time.Duration {
	if s.MinCreateDuration <= 0 {
		return -1
	}
	return s.MinCreateDuration
}
