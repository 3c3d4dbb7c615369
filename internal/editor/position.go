// Package editor defines the document model and the boundary to the host
// editor.
//
// The engine never talks to editor UI directly; it consumes immutable
// Document snapshots and a Session interface the host implements, and hands
// suggestions back through the engine API.
package editor

import "fmt"

// Position represents a line and column position in a document.
// Both Line and Column are 0-indexed. Column is measured in bytes.
type Position struct {
	Line   int
	Column int
}

// String returns a human-readable representation of the position.
func (p Position) String() string {
	return fmt.Sprintf("(%d:%d)", p.Line, p.Column)
}

// Compare returns -1 if p < other, 0 if p == other, 1 if p > other.
func (p Position) Compare(other Position) int {
	if p.Line != other.Line {
		if p.Line < other.Line {
			return -1
		}
		return 1
	}
	if p.Column != other.Column {
		if p.Column < other.Column {
			return -1
		}
		return 1
	}
	return 0
}

// Before returns true if p comes before other.
func (p Position) Before(other Position) bool {
	return p.Compare(other) < 0
}

// After returns true if p comes after other.
func (p Position) After(other Position) bool {
	return p.Compare(other) > 0
}

// Range represents a span between two positions.
// Start is inclusive, End is exclusive.
type Range struct {
	Start Position
	End   Position
}

// NewRange creates a Range from start and end positions.
func NewRange(start, end Position) Range {
	return Range{Start: start, End: end}
}

// String returns a human-readable representation of the range.
func (r Range) String() string {
	return fmt.Sprintf("[%s-%s)", r.Start, r.End)
}

// IsEmpty returns true if the range has zero extent.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// IsValid returns true if Start does not come after End.
func (r Range) IsValid() bool {
	return !r.Start.After(r.End)
}

// Contains returns true if the position is within the range.
func (r Range) Contains(p Position) bool {
	return !p.Before(r.Start) && p.Before(r.End)
}

// Overlaps returns true if this range overlaps with another range.
func (r Range) Overlaps(other Range) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// LineRange represents a whole-line span. Both bounds are 0-indexed and
// EndLine is inclusive, matching how the completion wire protocol addresses
// replacement targets.
type LineRange struct {
	StartLine int
	EndLine   int
}

// NewLineRange creates a LineRange covering startLine through endLine.
func NewLineRange(startLine, endLine int) LineRange {
	return LineRange{StartLine: startLine, EndLine: endLine}
}

// String returns a human-readable representation of the line range.
func (r LineRange) String() string {
	return fmt.Sprintf("[L%d-L%d]", r.StartLine, r.EndLine)
}

// Lines returns the number of lines covered by the range.
func (r LineRange) Lines() int {
	return r.EndLine - r.StartLine + 1
}

// IsValid returns true if the range covers at least one line.
func (r LineRange) IsValid() bool {
	return r.StartLine >= 0 && r.EndLine >= r.StartLine
}

// ContainsLine returns true if the given line falls inside the range.
func (r LineRange) ContainsLine(line int) bool {
	return line >= r.StartLine && line <= r.EndLine
}
