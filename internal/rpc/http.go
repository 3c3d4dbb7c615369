package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/filesync"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/logging"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/stream"
)

// HTTPClient speaks the native JSON chunk protocol.
type HTTPClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      *logging.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPTransport replaces the underlying http.Client.
func WithHTTPTransport(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.http = c }
}

// NewHTTPClient creates a client for the service at endpoint. The apiKey,
// when non-empty, is sent as a bearer token.
func NewHTTPClient(endpoint, apiKey string, log *logging.Logger, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log.WithComponent("rpc"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// StreamStart opens a streaming completion request.
func (h *HTTPClient) StreamStart(ctx context.Context, req *CompletionRequest, handle StreamHandle) error {
	body, err := encodeCompletionRequest(req, handle)
	if err != nil {
		return fmt.Errorf("encode stream start: %w", err)
	}
	_, err = h.post(ctx, "/v1/stream/start", body)
	return err
}

// PollChunks fetches the chunks produced since the previous poll.
func (h *HTTPClient) PollChunks(ctx context.Context, id string) ([]stream.Chunk, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "request_id", id)
	if err != nil {
		return nil, err
	}
	resp, err := h.post(ctx, "/v1/stream/poll", body)
	if err != nil {
		return nil, err
	}
	if gjson.GetBytes(resp, "status").String() == "failure" {
		return nil, &RequestError{Reason: gjson.GetBytes(resp, "reason").String()}
	}
	return DecodeChunks(resp)
}

// Cancel tears down the remote stream.
func (h *HTTPClient) Cancel(ctx context.Context, id string) error {
	body, err := sjson.SetBytes([]byte(`{}`), "request_id", id)
	if err != nil {
		return err
	}
	_, err = h.post(ctx, "/v1/stream/cancel", body)
	return err
}

// UploadFull sends a whole document snapshot.
func (h *HTTPClient) UploadFull(ctx context.Context, path, content string, version int, hash string) error {
	body := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		key   string
		value interface{}
	}{
		{"path", path},
		{"content", content},
		{"version", version},
		{"hash", hash},
	} {
		if body, err = sjson.SetBytes(body, kv.key, kv.value); err != nil {
			return err
		}
	}
	_, err = h.post(ctx, "/v1/files/upload", body)
	return err
}

// SyncIncremental sends a batch of pending deltas against the synced baseline.
func (h *HTTPClient) SyncIncremental(ctx context.Context, path string, version int, updates []filesync.SyncRecord, hash string) error {
	body := []byte(`{}`)
	var err error
	set := func(p string, v interface{}) {
		if err != nil {
			return
		}
		body, err = sjson.SetBytes(body, p, v)
	}
	set("path", path)
	set("version", version)
	set("hash", hash)
	for i, rec := range updates {
		set(fmt.Sprintf("updates.%d.model_version", i), rec.ModelVersion)
		set(fmt.Sprintf("updates.%d.expected_length", i), rec.ExpectedLength)
		for j, d := range rec.Updates {
			p := fmt.Sprintf("updates.%d.deltas.%d", i, j)
			set(p+".start_offset", d.StartOffset)
			set(p+".end_offset", d.EndOffset)
			set(p+".replaced_text", d.ReplacedText)
			set(p+".change_length", d.ChangeLength)
		}
	}
	if err != nil {
		return err
	}
	_, err = h.post(ctx, "/v1/files/sync", body)
	var re *RequestError
	if errors.As(err, &re) && re.Reason == reasonContentMismatch {
		return fmt.Errorf("%w: %v", filesync.ErrContentMismatch, re)
	}
	return err
}

// reasonContentMismatch is the server's rejection reason when the hash sent
// with a delta batch does not match its copy.
const reasonContentMismatch = "content_mismatch"

// post sends body to the endpoint path and returns the response body.
// Non-2xx statuses become RequestErrors; 429 and 5xx are retryable.
func (h *HTTPClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, &RequestError{Reason: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Reason: err.Error(), Retryable: true}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := gjson.GetBytes(data, "reason").String()
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		h.log.Debug("%s failed: %d %s", path, resp.StatusCode, reason)
		return nil, &RequestError{
			Status:    resp.StatusCode,
			Reason:    reason,
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}
	return data, nil
}

// encodeCompletionRequest renders the stream-start payload.
func encodeCompletionRequest(req *CompletionRequest, handle StreamHandle) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	set := func(p string, v interface{}) {
		if err != nil {
			return
		}
		body, err = sjson.SetBytes(body, p, v)
	}

	set("request_id", handle.ID)
	set("started_at", handle.Start.UnixMilli())
	set("workspace_id", req.WorkspaceID)
	if req.ControlToken != "" {
		set("control_token", req.ControlToken)
	}
	set("path", req.Path)
	set("language", req.LanguageID)
	set("version", req.Version)
	set("cursor.line", req.Cursor.Line)
	set("cursor.column", req.Cursor.Column)
	set("rely_on_file_sync", req.RelyOnFileSync)
	if req.Model != "" {
		set("model", req.Model)
	}
	if req.ManuallyTriggered {
		set("manual", true)
	}
	if !req.RelyOnFileSync {
		set("content", req.Content)
	}
	if req.ContentHash != "" {
		set("content_hash", req.ContentHash)
	}
	if req.VisibleRange != nil {
		set("visible_range.start_line", req.VisibleRange.StartLine)
		set("visible_range.end_line", req.VisibleRange.EndLine)
	}
	for i, rec := range req.Updates {
		set(fmt.Sprintf("updates.%d.model_version", i), rec.ModelVersion)
		set(fmt.Sprintf("updates.%d.expected_length", i), rec.ExpectedLength)
		for j, d := range rec.Updates {
			p := fmt.Sprintf("updates.%d.deltas.%d", i, j)
			set(p+".start_offset", d.StartOffset)
			set(p+".end_offset", d.EndOffset)
			set(p+".replaced_text", d.ReplacedText)
			set(p+".change_length", d.ChangeLength)
		}
	}
	for i, diag := range req.Diagnostics {
		p := fmt.Sprintf("diagnostics.%d", i)
		set(p+".message", diag.Message)
		set(p+".severity", int(diag.Severity))
		set(p+".line", diag.Range.Start.Line)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}
