package output

import (
	"time"

	"github.com/dustin/go-humanize"
)

// RelativeTime formats t relative to now, such as "3 minutes ago".
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Bytes formats a size with IEC units, such as "1.5 MiB".
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// Count formats an integer with thousands separators.
func Count(n int) string {
	return humanize.Comma(int64(n))
}
