package validate

import (
	"testing"
	"time"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/clock"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/stream"
)

func target(path string, line int) stream.CursorPredictionTarget {
	return stream.CursorPredictionTarget{Path: path, Line: line}
}

func TestShouldSuppress_NearCursor(t *testing.T) {
	s := NewSuppressor(clock.NewMock(), nil)

	if !s.ShouldSuppress(target("a.go", 12), "a.go", 10) {
		t.Error("target 2 lines from cursor should be suppressed")
	}
	if s.ShouldSuppress(target("a.go", 30), "a.go", 10) {
		t.Error("target 20 lines away should not be suppressed")
	}
	// Different file: cursor proximity does not apply.
	if s.ShouldSuppress(target("b.go", 12), "a.go", 10) {
		t.Error("target in another file should not be cursor-suppressed")
	}
}

func TestShouldSuppress_AfterJump(t *testing.T) {
	s := NewSuppressor(clock.NewMock(), nil)

	s.RecordCursorMove(true)
	if !s.ShouldSuppress(target("a.go", 100), "a.go", 10) {
		t.Error("prediction right after a jump should be suppressed")
	}

	s.RecordCursorMove(false)
	if s.ShouldSuppress(target("a.go", 100), "a.go", 10) {
		t.Error("ordinary cursor move should clear the jump flag")
	}
}

func TestShouldSuppress_RecentAcceptNearby(t *testing.T) {
	mock := clock.NewMock()
	s := NewSuppressor(mock, nil)

	s.RecordAccept("a.go", 50)

	if !s.ShouldSuppress(target("a.go", 53), "a.go", 200) {
		t.Error("target near a recent accept should be suppressed")
	}
	if s.ShouldSuppress(target("b.go", 53), "a.go", 200) {
		t.Error("accept in another file should not suppress")
	}
	if s.ShouldSuppress(target("a.go", 70), "a.go", 200) {
		t.Error("target far from the accept should not be suppressed")
	}

	// The accept ages out of the 30s window.
	mock.Advance(31 * time.Second)
	if s.ShouldSuppress(target("a.go", 53), "a.go", 200) {
		t.Error("aged-out accept should no longer suppress")
	}
}

func TestShouldSuppress_PolicyAdjustable(t *testing.T) {
	policy := SuppressPolicy{Radius: 1, AcceptWindow: time.Second}
	s := NewSuppressor(clock.NewMock(), func() SuppressPolicy { return policy })

	if s.ShouldSuppress(target("a.go", 13), "a.go", 10) {
		t.Error("3 lines away exceeds radius 1, should not suppress")
	}
	if !s.ShouldSuppress(target("a.go", 11), "a.go", 10) {
		t.Error("1 line away within radius 1 should suppress")
	}
}
