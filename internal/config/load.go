package config

import (
	"fmt"

	"github.com/yndnr/restorepoint-go/internal/infra/confloader"
)

// Load reads the configuration file at path (optional), the environment and
// overrides on top of Default, then verifies the result. The returned
// loader can reload the same sources.
func Load(path string, overrides map[string]any) (*Config, *confloader.Loader, error) {
	loader := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)
	cfg, err := Reload(loader)
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// Reload loads a fresh configuration from loader's sources.
func Reload(loader *confloader.Loader) (*Config, error) {
	cfg := Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
