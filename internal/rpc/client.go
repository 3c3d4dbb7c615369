// Package rpc defines the boundary to the remote completion service: a
// streaming request/poll/cancel surface plus the file-sync upload endpoints.
// The native wire format is JSON over HTTP; alternate providers implement
// the same Client interface.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/filesync"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/stream"
)

// StreamHandle identifies one streaming request on the wire.
type StreamHandle struct {
	ID    string
	Start time.Time
}

// CompletionRequest is the payload of one streaming completion request.
// When RelyOnFileSync is true the server already holds the document and
// Updates carries only the deltas it has not seen; otherwise Content is the
// full snapshot.
type CompletionRequest struct {
	WorkspaceID  string
	ControlToken string

	Path       string
	LanguageID string
	Version    int
	Cursor     editor.Position

	Content        string
	ContentHash    string
	RelyOnFileSync bool
	Updates        []filesync.SyncRecord

	VisibleRange      *editor.LineRange
	Diagnostics       []editor.Diagnostic
	ManuallyTriggered bool

	Model string
}

// Client is the wire boundary. UploadFull and SyncIncremental make every
// Client usable as a filesync.Uploader.
type Client interface {
	// StreamStart opens a streaming completion request under handle.ID.
	StreamStart(ctx context.Context, req *CompletionRequest, handle StreamHandle) error
	// PollChunks returns the chunks produced since the previous poll. An
	// empty slice means the stream is still running with nothing new.
	PollChunks(ctx context.Context, id string) ([]stream.Chunk, error)
	// Cancel tears down the remote stream. Used only for explicit
	// user-driven cancellation.
	Cancel(ctx context.Context, id string) error

	UploadFull(ctx context.Context, path, content string, version int, hash string) error
	SyncIncremental(ctx context.Context, path string, version int, updates []filesync.SyncRecord, hash string) error
}

// RequestError is a failure reported by the service. Status carries the
// HTTP status when the transport produced one.
type RequestError struct {
	Status    int
	Reason    string
	Retryable bool
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("rpc: %s (status %d)", e.Reason, e.Status)
	}
	return fmt.Sprintf("rpc: %s", e.Reason)
}

// Retryable reports whether err is, or wraps, a RequestError the caller
// may retry.
func Retryable(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Retryable
}
