package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestRedactSensitive_SealSecret(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("sealing enabled", "seal", "rpsk_ABCDEFGHIJKLMNOPQRSTUVWXYZ")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got := entry["seal"]; got != "rpsk_ABC...XYZ" {
		t.Errorf("seal = %v, want %q", got, "rpsk_ABC...XYZ")
	}
}

func TestRedactSensitive(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"secret key name", slog.String("seal_secret", "hunter2"), redactedValue},
		{"password key name", slog.String("Password", "hunter2"), redactedValue},
		{"empty secret", slog.String("seal_secret", ""), ""},
		{"asset key", slog.String("key", "cat.svg"), "cat.svg"},
		{"normal value", slog.String("dir", "/var/lib/rp"), "/var/lib/rp"},
		{"short prefixed", slog.String("v", "rpsk_abc"), "rpsk_***"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactSensitive(tt.attr)
			if got.Value.String() != tt.want {
				t.Errorf("redactSensitive(%v) = %q, want %q", tt.attr, got.Value.String(), tt.want)
			}
		})
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	a := slog.Group("storage", slog.String("dir", "/d"), slog.String("secret", "s3cr3t"))
	got := redactSensitive(a).Value.Group()
	if got[0].Value.String() != "/d" {
		t.Errorf("dir = %q, want unchanged", got[0].Value.String())
	}
	if got[1].Value.String() != redactedValue {
		t.Errorf("secret = %q, want redacted", got[1].Value.String())
	}
}

func TestRedactString(t *testing.T) {
	if got := RedactString("rpsk_0123456789"); got != "rpsk_012...789" {
		t.Errorf("RedactString() = %q", got)
	}
	if got := RedactString("plain"); got != "plain" {
		t.Errorf("RedactString(plain) = %q, want unchanged", got)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for key, want := range map[string]bool{
		"seal_secret": true,
		"api_token":   true,
		"key":         false,
		"id":          false,
	} {
		if got := IsSensitiveKey(key); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}
