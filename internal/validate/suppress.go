package validate

import (
	"sync"
	"time"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/clock"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/stream"
)

// SuppressPolicy tunes cursor-prediction suppression.
type SuppressPolicy struct {
	// Radius is the line distance considered "nearby".
	Radius int
	// AcceptWindow is how long a recent accept keeps suppressing targets
	// near it.
	AcceptWindow time.Duration
}

// DefaultSuppressPolicy returns the shipped suppression policy.
func DefaultSuppressPolicy() SuppressPolicy {
	return SuppressPolicy{Radius: 5, AcceptWindow: 30 * time.Second}
}

// acceptMark records one accepted suggestion for recency checks.
type acceptMark struct {
	path string
	line int
	at   time.Time
}

// Suppressor drops cursor-prediction hints that would bounce the user
// around pointlessly. A suppressed prediction only drops the navigation
// hint; an accompanying code edit still goes through.
type Suppressor struct {
	mu     sync.Mutex
	clk    clock.Clock
	policy func() SuppressPolicy

	accepts      []acceptMark
	lastMoveJump bool
}

// NewSuppressor creates a suppressor. The policy func is consulted per call.
func NewSuppressor(clk clock.Clock, policy func() SuppressPolicy) *Suppressor {
	if policy == nil {
		def := DefaultSuppressPolicy()
		policy = func() SuppressPolicy { return def }
	}
	return &Suppressor{clk: clk, policy: policy}
}

// RecordAccept notes an accepted suggestion at the given location.
func (s *Suppressor) RecordAccept(path string, line int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	s.pruneLocked(now)
	s.accepts = append(s.accepts, acceptMark{path: path, line: line, at: now})
}

// RecordCursorMove notes a cursor move and whether a prediction jump caused
// it.
func (s *Suppressor) RecordCursorMove(causedByJump bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMoveJump = causedByJump
}

// ShouldSuppress reports whether the prediction target should be hidden
// given the current cursor location.
func (s *Suppressor) ShouldSuppress(target stream.CursorPredictionTarget, currentPath string, cursorLine int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy := s.policy()

	// A jump chained onto a jump disorients more than it helps.
	if s.lastMoveJump {
		return true
	}

	if target.Path == currentPath && abs(target.Line-cursorLine) <= policy.Radius {
		return true
	}

	now := s.clk.Now()
	s.pruneLocked(now)
	for _, m := range s.accepts {
		if m.path != target.Path {
			continue
		}
		if now.Sub(m.at) <= policy.AcceptWindow && abs(target.Line-m.line) <= policy.Radius {
			return true
		}
	}
	return false
}

// pruneLocked drops accept marks older than the recency window.
func (s *Suppressor) pruneLocked(now time.Time) {
	window := s.policy().AcceptWindow
	kept := s.accepts[:0]
	for _, m := range s.accepts {
		if now.Sub(m.at) <= window {
			kept = append(kept, m)
		}
	}
	s.accepts = kept
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
