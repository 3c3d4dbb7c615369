package editor

import "strings"

// EOLStyle identifies the line ending convention of a document.
type EOLStyle string

const (
	// EOLUnix is "\n" line endings.
	EOLUnix EOLStyle = "\n"
	// EOLWindows is "\r\n" line endings.
	EOLWindows EOLStyle = "\r\n"
)

// Document is an immutable snapshot of an open buffer.
type Document struct {
	// Path is the workspace-relative path identifying the buffer.
	Path string
	// Content is the full buffer text at Version.
	Content string
	// Version is the edit counter; it increments on every mutation.
	Version int
	// EOL is the document's line ending style.
	EOL EOLStyle
	// LanguageID is the editor's language identifier (e.g. "go", "cpp").
	LanguageID string
}

// Key returns the identity of the buffer this snapshot belongs to.
func (d Document) Key() string {
	return d.Path
}

// Lines splits the content into lines without trailing line endings.
func (d Document) Lines() []string {
	eol := string(d.EOL)
	if eol == "" {
		eol = "\n"
	}
	content := d.Content
	if eol == string(EOLWindows) {
		// Normalize so a stray bare "\n" cannot skew line indexing.
		content = strings.ReplaceAll(content, "\r\n", "\n")
	}
	return strings.Split(content, "\n")
}

// Line returns the text of the 0-indexed line, or "" when out of bounds.
func (d Document) Line(i int) string {
	lines := d.Lines()
	if i < 0 || i >= len(lines) {
		return ""
	}
	return lines[i]
}

// LineCount returns the number of lines in the document.
func (d Document) LineCount() int {
	return len(d.Lines())
}

// LineText joins the lines in the given range using the document's EOL.
// Out-of-range lines are ignored.
func (d Document) LineText(r LineRange) string {
	lines := d.Lines()
	if r.StartLine < 0 || r.StartLine >= len(lines) {
		return ""
	}
	end := r.EndLine
	if end >= len(lines) {
		end = len(lines) - 1
	}
	return strings.Join(lines[r.StartLine:end+1], "\n")
}

// EditDelta describes one local mutation of a document.
type EditDelta struct {
	// StartOffset and EndOffset bound the replaced span in bytes,
	// relative to the pre-edit content.
	StartOffset int
	EndOffset   int
	// ReplacedText is the new text inserted at the span.
	ReplacedText string
	// ChangeLength is the length of the text that was removed.
	ChangeLength int
	// Range is the replaced span in line/column coordinates.
	Range Range
}

// Delta returns the change in document length caused by this edit.
func (e EditDelta) Delta() int {
	return len(e.ReplacedText) - e.ChangeLength
}

// IsInsert returns true if this delta inserts without removing text.
func (e EditDelta) IsInsert() bool {
	return e.ChangeLength == 0 && e.ReplacedText != ""
}

// IsDelete returns true if this delta removes without inserting text.
func (e EditDelta) IsDelete() bool {
	return e.ChangeLength > 0 && e.ReplacedText == ""
}

// DiagnosticSeverity mirrors the editor's diagnostic severity scale.
type DiagnosticSeverity int

const (
	// SeverityError is a hard error diagnostic.
	SeverityError DiagnosticSeverity = iota + 1
	// SeverityWarning is a warning diagnostic.
	SeverityWarning
	// SeverityInformation is an informational diagnostic.
	SeverityInformation
	// SeverityHint is a hint diagnostic.
	SeverityHint
)

// Diagnostic is a linter or language-server finding attached to a document.
type Diagnostic struct {
	Message  string
	Source   string
	Severity DiagnosticSeverity
	Range    Range
}

// Session is the boundary to the host editor. The host implements it; the
// engine only reads through it. All methods must be safe for concurrent use.
type Session interface {
	// Document returns the current snapshot for the given path.
	Document(path string) (Document, bool)

	// Cursor returns the cursor position in the given document.
	Cursor(path string) (Position, bool)

	// VisibleRange returns the 0-indexed line span currently on screen.
	VisibleRange(path string) (LineRange, bool)

	// Diagnostics returns current diagnostics for the given document.
	Diagnostics(path string) []Diagnostic
}
