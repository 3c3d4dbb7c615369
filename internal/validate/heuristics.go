// Package validate rejects completion candidates that would waste the
// user's attention: no-ops, whitespace-only churn, and text the document
// already contains. It also decides when a cursor-prediction hint is too
// noisy to show.
package validate

import (
	"strings"
	"unicode"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/logging"
)

// Reason identifies why a candidate was rejected.
type Reason string

const (
	// ReasonNone means the candidate passed all checks.
	ReasonNone Reason = ""
	// ReasonNoOp means the candidate equals the text it replaces.
	ReasonNoOp Reason = "noOp"
	// ReasonWhitespaceOnly means only whitespace differs.
	ReasonWhitespaceOnly Reason = "whitespaceOnly"
	// ReasonDuplicatingLine means the candidate's last line duplicates the
	// line right after the replaced range.
	ReasonDuplicatingLine Reason = "duplicatingLine"
	// ReasonRepeatedContent means every candidate line already exists in
	// the document starting at the range.
	ReasonRepeatedContent Reason = "repeatedContent"
)

// maxValidatedDocumentSize skips all checks for very large documents, where
// line splitting per candidate would dominate the request.
const maxValidatedDocumentSize = 1_000_000

// Checks toggles the individual candidate checks.
type Checks struct {
	NoOp            bool
	WhitespaceOnly  bool
	DuplicatingLine bool
	RepeatedContent bool
	// AllowWhitespaceOnly downgrades the whitespace-only check when the
	// host wants formatting-only suggestions.
	AllowWhitespaceOnly bool
}

// AllChecks enables every check.
func AllChecks() Checks {
	return Checks{NoOp: true, WhitespaceOnly: true, DuplicatingLine: true, RepeatedContent: true}
}

// Heuristics validates completion candidates against a document snapshot.
type Heuristics struct {
	log    *logging.Logger
	checks func() Checks
}

// NewHeuristics creates a validator. The checks func is consulted per call
// so config changes take effect immediately.
func NewHeuristics(log *logging.Logger, checks func() Checks) *Heuristics {
	if checks == nil {
		all := AllChecks()
		checks = func() Checks { return all }
	}
	return &Heuristics{log: log.WithComponent("validate"), checks: checks}
}

// Check validates proposed replacement text for the inclusive line span
// [startLine, endLine] of doc. It returns false and a Reason when the
// candidate should be rejected.
func (h *Heuristics) Check(doc editor.Document, startLine, endLine int, proposed string) (bool, Reason) {
	if len(doc.Content) >= maxValidatedDocumentSize {
		return true, ReasonNone
	}

	checks := h.checks()
	original := doc.LineText(editor.NewLineRange(startLine, endLine))

	if checks.NoOp && strings.TrimSpace(original) == strings.TrimSpace(proposed) {
		h.log.Debug("rejected candidate at %d-%d: %s", startLine, endLine, ReasonNoOp)
		return false, ReasonNoOp
	}

	if checks.WhitespaceOnly && !checks.AllowWhitespaceOnly &&
		original != proposed && stripWhitespace(original) == stripWhitespace(proposed) {
		h.log.Debug("rejected candidate at %d-%d: %s", startLine, endLine, ReasonWhitespaceOnly)
		return false, ReasonWhitespaceOnly
	}

	proposedLines := strings.Split(proposed, "\n")

	if checks.DuplicatingLine {
		if last, ok := lastContentLine(proposedLines); ok {
			next := strings.TrimSpace(doc.Line(endLine + 1))
			if next != "" && last == next {
				h.log.Debug("rejected candidate at %d-%d: %s", startLine, endLine, ReasonDuplicatingLine)
				return false, ReasonDuplicatingLine
			}
		}
	}

	if checks.RepeatedContent && len(proposedLines) > endLine-startLine+1 {
		if linesAlreadyPresent(doc, startLine, proposedLines) {
			h.log.Debug("rejected candidate at %d-%d: %s", startLine, endLine, ReasonRepeatedContent)
			return false, ReasonRepeatedContent
		}
	}

	return true, ReasonNone
}

// lastContentLine returns the trimmed last non-empty proposed line, unless
// it is a bare closing brace or bracket, which legitimately duplicates the
// following line all the time.
func lastContentLine(lines []string) (string, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if trimmed == "}" || trimmed == "]" {
			return "", false
		}
		return trimmed, true
	}
	return "", false
}

// linesAlreadyPresent reports whether every proposed line matches, after
// trimming, the corresponding existing document line from startLine on.
func linesAlreadyPresent(doc editor.Document, startLine int, proposedLines []string) bool {
	docLines := doc.Lines()
	for i, p := range proposedLines {
		idx := startLine + i
		if idx >= len(docLines) {
			return false
		}
		if strings.TrimSpace(p) != strings.TrimSpace(docLines[idx]) {
			return false
		}
	}
	return true
}

// stripWhitespace removes all whitespace characters.
func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
