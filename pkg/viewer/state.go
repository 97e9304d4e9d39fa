// Package viewer holds the client-side view of a log stream: a bounded
// scrollback with autoscroll that survives reconnects.
package viewer

import "github.com/modoterra/tailcast/pkg/core"

// DefaultTolerance is how many lines above the bottom still count as "at
// the bottom" when a new line arrives.
const DefaultTolerance = 1

// State is the scrollback of one viewer. It is not safe for concurrent use;
// the TUI mutates it from its update loop only.
type State struct {
	lines     []core.LogLine
	maxLines  int
	height    int
	offset    int
	follow    bool
	lastSeq   uint64
	tolerance int
}

// New returns an empty state that keeps at most maxLines and shows height
// lines at a time.
func New(maxLines, height int) *State {
	if maxLines < 1 {
		maxLines = 1
	}
	if height < 1 {
		height = 1
	}
	return &State{maxLines: maxLines, height: height, follow: true, tolerance: DefaultTolerance}
}

// SetTolerance changes the at-bottom slack used by Append.
func (s *State) SetTolerance(n int) {
	if n < 0 {
		n = 0
	}
	s.tolerance = n
}

// Append adds a line. Lines at or below the last seen sequence number are
// dropped and Append reports false. If the view was at the bottom it stays
// there; otherwise the same lines stay on screen as old ones are evicted.
func (s *State) Append(line core.LogLine) bool {
	if line.Seq != 0 && line.Seq <= s.lastSeq {
		return false
	}
	if line.Seq != 0 {
		s.lastSeq = line.Seq
	}

	wasAtBottom := s.atBottom()
	s.lines = append(s.lines, line)
	evicted := 0
	if n := len(s.lines) - s.maxLines; n > 0 {
		s.lines = s.lines[n:]
		evicted = n
	}

	if wasAtBottom {
		s.offset = s.maxOffset()
		s.follow = true
		return true
	}
	s.offset = clamp(s.offset-evicted, 0, s.maxOffset())
	s.follow = s.atBottom()
	return true
}

// Reset clears the scrollback for a fresh replay and re-enables following.
func (s *State) Reset() {
	s.lines = nil
	s.offset = 0
	s.lastSeq = 0
	s.follow = true
}

// ScrollBy moves the view n lines (negative is up).
func (s *State) ScrollBy(n int) { s.ScrollTo(s.offset + n) }

// ScrollTo moves the first visible line to off.
func (s *State) ScrollTo(off int) {
	s.offset = clamp(off, 0, s.maxOffset())
	s.follow = s.atBottom()
}

// Top jumps to the oldest line.
func (s *State) Top() { s.ScrollTo(0) }

// Bottom jumps to the newest line and resumes following.
func (s *State) Bottom() { s.ScrollTo(s.maxOffset()) }

// Resize changes the number of visible lines, keeping the bottom pinned
// while following.
func (s *State) Resize(height int) {
	if height < 1 {
		height = 1
	}
	s.height = height
	if s.follow {
		s.offset = s.maxOffset()
		return
	}
	s.offset = clamp(s.offset, 0, s.maxOffset())
	s.follow = s.atBottom()
}

// Lines returns the scrollback oldest first. The slice must not be modified.
func (s *State) Lines() []core.LogLine { return s.lines }

// Visible returns the lines currently on screen.
func (s *State) Visible() []core.LogLine {
	end := min(s.offset+s.height, len(s.lines))
	return s.lines[s.offset:end]
}

func (s *State) Len() int        { return len(s.lines) }
func (s *State) Height() int     { return s.height }
func (s *State) Offset() int     { return s.offset }
func (s *State) Follow() bool    { return s.follow }
func (s *State) LastSeq() uint64 { return s.lastSeq }
func (s *State) MaxLines() int   { return s.maxLines }
func (s *State) MaxOffset() int  { return s.maxOffset() }

func (s *State) maxOffset() int {
	return max(0, len(s.lines)-s.height)
}

func (s *State) atBottom() bool {
	return s.offset >= s.maxOffset()-s.tolerance
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
