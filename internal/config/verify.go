package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/yndnr/restorepoint-go/internal/storage/sealed"
	"github.com/yndnr/restorepoint-go/internal/telemetry/logger"
)

var (
	backends   = []string{"auto", "fs", "kv"}
	logFormats = []string{"json", "text", "console"}
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	return errors.Join(
		verifyStorage(&cfg.Storage),
		verifyScheduler(&cfg.Scheduler),
		verifyHTTP(&cfg.HTTP),
		verifyLog(&cfg.Log),
	)
}

func verifyHTTP(cfg *HTTPSection) error {
	if cfg.RateLimit < 0 {
		return errors.New("http.rate_limit must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if !slices.Contains(backends, cfg.Backend) {
		return fmt.Errorf("storage.backend must be one of %v, got %q", backends, cfg.Backend)
	}
	if cfg.Dir == "" {
		return errors.New("storage.dir is required")
	}
	if cfg.MaxRetained < 1 {
		return errors.New("storage.max_retained must be at least 1")
	}
	if cfg.SealSecret != "" && len(cfg.SealSecret) < sealed.MinSecretLength {
		return fmt.Errorf("storage.seal_secret must be at least %d bytes", sealed.MinSecretLength)
	}
	return nil
}

func verifyScheduler(cfg *SchedulerSection) error {
	if cfg.Interval <= 0 {
		return errors.New("scheduler.interval must be positive")
	}
	if cfg.MinCreateDuration < 0 {
		return errors.New("scheduler.min_create_duration must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if !slices.Contains(logFormats, cfg.Format) {
		return fmt.Errorf("log.format must be one of %v, got %q", logFormats, cfg.Format)
	}
	return nil
}
