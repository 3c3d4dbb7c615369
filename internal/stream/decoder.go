package stream

import (
	"strings"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
)

// Edit is a completed edit produced at a DoneEdit boundary.
type Edit struct {
	// Range is the line span the edit replaces.
	Range editor.LineRange
	// Text is the replacement text.
	Text string
	// BindingID correlates accept/reject events, when the backend issued one.
	BindingID string
	// TrimLeading records the trim flag from the range chunk.
	TrimLeading bool
}

// Result is everything decoded from one stream.
type Result struct {
	// Edits are the completed edits, in stream order.
	Edits []Edit
	// CursorTarget is the prediction hint, if the stream carried one.
	CursorTarget *CursorPredictionTarget
	// Model is the model capability report, if the stream carried one.
	Model *ModelInfo
}

// Decoder converts an ordered chunk sequence into a Result. It is a small
// automaton: Text accumulates, RangeToReplace binds the target span,
// DoneEdit flushes, Terminator finishes. A BeginEdit segments the
// accumulation without ending the stream, so edits after the first keep
// arriving and can be cached.
//
// A Decoder is single-use and not safe for concurrent use.
type Decoder struct {
	buf         strings.Builder
	target      editor.LineRange
	bindingID   string
	trimLeading bool
	haveRange   bool

	result Result
	done   bool
}

// NewDecoder creates a fresh decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes one chunk. It returns true once the stream has terminated;
// chunks fed after that are ignored.
func (d *Decoder) Feed(c Chunk) bool {
	if d.done {
		return true
	}

	switch v := c.(type) {
	case Text:
		d.buf.WriteString(v.Content)
	case RangeToReplace:
		d.target = v.Range
		d.bindingID = v.BindingID
		d.trimLeading = v.TrimLeading
		d.haveRange = true
	case BeginEdit:
		d.reset()
	case DoneEdit:
		d.flush()
	case CursorPredictionTarget:
		target := v
		d.result.CursorTarget = &target
	case ModelInfo:
		info := v
		d.result.Model = &info
	case Terminator:
		d.done = true
	}
	return d.done
}

// Done reports whether a Terminator has been consumed.
func (d *Decoder) Done() bool {
	return d.done
}

// Result returns everything decoded so far.
func (d *Decoder) Result() Result {
	return d.result
}

// flush completes the edit in progress. Without a target range there is
// nothing to anchor the text to, so stray accumulation is dropped.
func (d *Decoder) flush() {
	if d.haveRange {
		text := d.buf.String()
		if d.trimLeading {
			text = strings.TrimPrefix(text, "\n")
		}
		d.result.Edits = append(d.result.Edits, Edit{
			Range:       d.target,
			Text:        text,
			BindingID:   d.bindingID,
			TrimLeading: d.trimLeading,
		})
	}
	d.reset()
}

// reset clears the accumulation state for the next edit.
func (d *Decoder) reset() {
	d.buf.Reset()
	d.target = editor.LineRange{}
	d.bindingID = ""
	d.trimLeading = false
	d.haveRange = false
}
