package logger

import (
	"log/slog"
	"strings"
)

// SealSecretPrefix marks generated sealing secrets.
const SealSecretPrefix = "rpsk_"

// Attribute names whose values are never logged.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"passphrase",
}

const redactedValue = "***REDACTED***"

// redactSensitive masks sealing secrets wherever they appear and fully
// redacts values of sensitively named attributes.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if strings.HasPrefix(s, SealSecretPrefix) {
			return slog.String(a.Key, maskValue(s, SealSecretPrefix))
		}
		if s != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// maskValue keeps prefix and the first and last three characters.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks value if it is a sealing secret.
func RedactString(value string) string {
	if strings.HasPrefix(value, SealSecretPrefix) {
		return maskValue(value, SealSecretPrefix)
	}
	return value
}

// IsSensitiveKey reports whether an attribute name suggests secret content.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
