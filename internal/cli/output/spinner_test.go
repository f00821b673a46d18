package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer written by the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_Success(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "Creating restore point")
	s.interval = 10 * time.Millisecond
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Success("Created 7")

	out := buf.String()
	if !strings.Contains(out, "Creating restore point") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.HasSuffix(out, "✓ Created 7\n") {
		t.Errorf("output does not end with success line: %q", out)
	}
}

func TestSpinner_StopIdempotent(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "Working")
	s.Start()
	s.Fail("failed")
	s.Stop()
	s.Success("ignored")

	out := buf.String()
	if strings.Contains(out, "ignored") {
		t.Errorf("second finish wrote output: %q", out)
	}
	if !strings.Contains(out, "✗ failed") {
		t.Errorf("output missing failure line: %q", out)
	}
}
