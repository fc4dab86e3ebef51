package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/anstrom/quickscope/internal/scanning"
)

// progressEvery is how many finished units pass between progress lines.
const progressEvery = 50

// Progress writes a single updating progress line, typically to stderr.
type Progress struct {
	w    io.Writer
	mu   sync.Mutex
	done int
}

// NewProgress creates a progress reporter writing to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

// Observe is a scanning.ProgressFunc.
func (p *Progress) Observe(e scanning.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = e.Done
	if e.Done%progressEvery != 0 {
		return
	}
	pct := 0.0
	if e.Total > 0 {
		pct = float64(e.Done) / float64(e.Total) * 100
	}
	_, _ = fmt.Fprintf(p.w, "\r[+] Progress: %d/%d (%0.1f%%)", e.Done, e.Total, pct)
}

// Finish ends the progress line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, "\r%-40s\n", fmt.Sprintf("[+] Progress: done (%d)", p.done))
}
