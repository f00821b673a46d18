// Package config defines the restore point configuration.
//
//   - spec.go: Config struct definition
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: masking secrets before the config is printed or logged
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// RESTOREPOINT_* environment variables and flag overrides.
package config
