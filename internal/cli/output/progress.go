package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressBar displays byte progress of a transfer. It implements
// io.Writer so it can be placed behind an io.MultiWriter or io.TeeReader.
type ProgressBar struct {
	w       io.Writer
	title   string
	width   int
	mu      sync.Mutex
	total   int64
	current int64
}

// NewProgressBar creates a progress bar. A total of zero or less shows
// only the byte count.
func NewProgressBar(w io.Writer, title string, total int64) *ProgressBar {
	return &ProgressBar{w: w, title: title, width: 30, total: total}
}

// Write counts len(p) bytes.
func (p *ProgressBar) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += int64(len(b))
	p.render()
	return len(b), nil
}

// Finish renders the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		p.current = p.total
	}
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %s", p.title, Bytes(p.current))
		return
	}
	frac := min(float64(p.current)/float64(p.total), 1)
	filled := int(float64(p.width) * frac)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% (%s/%s)", p.title, bar, frac*100, Bytes(p.current), Bytes(p.total))
}
