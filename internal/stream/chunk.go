// Package stream defines the completion service's chunk protocol and the
// decoder that turns an ordered chunk sequence into discrete edits.
package stream

import (
	"fmt"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
)

// Chunk is one frame of a completion stream. It is a sealed tagged union;
// consumers switch exhaustively over the concrete types.
type Chunk interface {
	isChunk()
}

// Text carries a fragment of generated text for the edit in progress.
type Text struct {
	Content string
}

// RangeToReplace names the line span the edit in progress replaces.
type RangeToReplace struct {
	Range editor.LineRange
	// BindingID correlates later accept/reject events with this edit.
	BindingID string
	// TrimLeading strips the leading newline the model emits before the
	// edit body.
	TrimLeading bool
}

// BeginEdit marks the start of a new edit within the stream.
type BeginEdit struct{}

// DoneEdit marks the end of the edit in progress.
type DoneEdit struct{}

// CursorPredictionTarget hints where the cursor should move next.
type CursorPredictionTarget struct {
	Path            string
	Line            int
	ExpectedContent string
	ShouldRetrigger bool
}

// ModelInfo reports capability flags of the serving model.
type ModelInfo struct {
	// IsFused means the model emits cursor predictions fused with edits.
	IsFused bool
	// IsMultidiff means the model may emit several edits per stream.
	IsMultidiff bool
	// Name is the serving model's name.
	Name string
}

// Terminator ends the stream.
type Terminator struct{}

func (Text) isChunk()                   {}
func (RangeToReplace) isChunk()         {}
func (BeginEdit) isChunk()              {}
func (DoneEdit) isChunk()               {}
func (CursorPredictionTarget) isChunk() {}
func (ModelInfo) isChunk()              {}
func (Terminator) isChunk()             {}

// String returns a short debug form of the chunk.
func String(c Chunk) string {
	switch v := c.(type) {
	case Text:
		return fmt.Sprintf("Text(%q)", v.Content)
	case RangeToReplace:
		return fmt.Sprintf("RangeToReplace(%s, binding=%q)", v.Range, v.BindingID)
	case BeginEdit:
		return "BeginEdit"
	case DoneEdit:
		return "DoneEdit"
	case CursorPredictionTarget:
		return fmt.Sprintf("CursorPredictionTarget(%s:%d)", v.Path, v.Line)
	case ModelInfo:
		return fmt.Sprintf("ModelInfo(%s)", v.Name)
	case Terminator:
		return "Terminator"
	default:
		return "Unknown"
	}
}
