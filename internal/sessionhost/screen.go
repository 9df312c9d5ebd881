package sessionhost

import (
	"bytes"
	"sync"

	"github.com/vito/midterm"
)

// screen maintains the live VT100 screen plus a 1000-line scrollback, fed
// every chunk read from the PTY (spec §4.3 step 5). It mirrors the two-
// terminal pattern (a live view and a separate append-only, auto-resizing
// scrollback instance) used to track history distinct from the visible
// frame.
type screen struct {
	mu         sync.Mutex
	live       *midterm.Terminal
	scrollback *midterm.Terminal
	rows, cols int
}

const scrollbackLines = 1000

func newScreen(rows, cols int) *screen {
	s := &screen{rows: rows, cols: cols}
	s.live = midterm.NewTerminal(rows, cols)
	s.scrollback = midterm.NewTerminal(scrollbackLines, cols)
	s.scrollback.AutoResizeY = true
	s.scrollback.AppendOnly = true
	return s
}

// Feed parses a chunk of PTY output into both the live screen and the
// append-only scrollback.
func (s *screen) Feed(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.live.Write(chunk)
	_, _ = s.scrollback.Write(chunk)
}

// Resize updates both terminals to a new size (spec §4.3: client Resize
// frame resizes the PTY and the parser together).
func (s *screen) Resize(rows, cols int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows, s.cols = rows, cols
	s.live.Resize(rows, cols)
	s.scrollback.Resize(scrollbackLines, cols)
}

// Snapshot renders the live screen as an ANSI byte sequence that, fed to a
// fresh VT parser, reconstructs the current visible frame (spec §10
// "Snapshot" glossary entry).
func (s *screen) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var buf bytes.Buffer
	_ = s.live.Render(&buf)
	return buf.Bytes()
}
