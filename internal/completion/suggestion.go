// Package completion orchestrates the completion request pipeline: admitting
// triggers, consuming streamed chunks, validating candidates, caching
// superseded results, and driving the accept/reject lifecycle.
package completion

import (
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/stream"
)

// Display hints for the editor layer.
const (
	// HintInline renders the suggestion as ghost text at the cursor.
	HintInline = "inline"
	// HintInlineEdit renders the suggestion as a multi-line edit preview.
	HintInlineEdit = "inline-edit"
	// HintJump renders a navigation hint with no text change.
	HintJump = "jump"
)

// Suggestion is one completion candidate handed to the editor layer.
type Suggestion struct {
	// RequestID is the opaque id accept/reject events refer back to.
	RequestID string
	// Text is the replacement text. Empty for a pure jump hint.
	Text string
	// Range is the line span Text replaces.
	Range editor.LineRange
	// BindingID is the backend's correlation id, when it issued one.
	BindingID string
	// DisplayHint tells the editor how to render the suggestion.
	DisplayHint string
	// IsInlineEdit marks a multi-line rewrite rather than ghost text.
	IsInlineEdit bool
	// CursorTarget is the navigation hint attached to the suggestion.
	CursorTarget *stream.CursorPredictionTarget
	// NextActionID names the registered follow-up consumed on accept.
	NextActionID string
}

// EndReason classifies why a suggestion left the screen.
type EndReason string

const (
	ReasonAccepted   EndReason = "accepted"
	ReasonRejected   EndReason = "rejected"
	ReasonSuperseded EndReason = "superseded"
	ReasonAborted    EndReason = "aborted"
	ReasonExpired    EndReason = "expired"
)

// NextAction is what accepting a suggestion triggers. Sealed union.
type NextAction interface {
	isNextAction()
}

// NextEdit means more edits are queued; accept re-triggers and the
// follow-up path serves the next one without a backend call.
type NextEdit struct{}

// FusedCursorPrediction means accept navigates the cursor to Target.
type FusedCursorPrediction struct {
	Target stream.CursorPredictionTarget
}

func (NextEdit) isNextAction()              {}
func (FusedCursorPrediction) isNextAction() {}

// FollowupSession queues the edits beyond the first from one stream. Its
// line numbers reference the buffer as it was when cached, so the session
// dies once the document version advances by more than one.
type FollowupSession struct {
	Path           string
	RequestID      string
	Queue          []stream.Edit
	VersionAtCache int
}
