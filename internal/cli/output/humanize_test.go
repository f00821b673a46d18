package output

import (
	"testing"
	"time"
)

func TestRelativeTime(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		t    time.Time
		want string
	}{
		{now.Add(-3 * time.Minute), "3 minutes ago"},
		{now.Add(-2 * time.Hour), "2 hours ago"},
		{time.Time{}, ""},
	}
	for _, tt := range tests {
		if got := RelativeTime(tt.t, now); got != tt.want {
			t.Errorf("RelativeTime(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{-1, "0 B"},
	}
	for _, tt := range tests {
		if got := Bytes(tt.n); got != tt.want {
			t.Errorf("Bytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestCount(t *testing.T) {
	if got := Count(1234567); got != "1,234,567" {
		t.Errorf("Count() = %q", got)
	}
}
