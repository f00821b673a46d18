package config

import "strings"

// Sanitize returns a copy of the config with secrets masked, for printing
// and logging.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg
	if sanitized.Storage.SealSecret != "" {
		sanitized.Storage.SealSecret = maskSecret(sanitized.Storage.SealSecret)
	}
	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
