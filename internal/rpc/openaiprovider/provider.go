// Package openaiprovider adapts the OpenAI chat-completion streaming API to
// the engine's chunk protocol. Completion deltas become Text chunks inside a
// single synthesized edit that replaces the cursor line.
//
// The OpenAI surface has no file-sync endpoints, so documents always travel
// inline: UploadFull and SyncIncremental return ErrUnsupported and the sync
// coordinator never builds up the success streak that would enable
// delta-based requests.
package openaiprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/filesync"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/logging"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/rpc"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/stream"
)

// ErrUnsupported reports an operation the OpenAI surface does not offer.
var ErrUnsupported = errors.New("openaiprovider: operation not supported")

const systemPrompt = "You are a code-completion engine. Reply with the " +
	"replacement for the marked line only: no prose, no code fences."

// contextLines bounds how much of the document surrounds the cursor in the
// prompt.
const contextLines = 60

// Provider implements rpc.Client over the OpenAI chat streaming API.
type Provider struct {
	model string
	log   *logging.Logger

	// complete starts one completion and emits text deltas. Overridable
	// in tests.
	complete func(ctx context.Context, prompt string, deltas chan<- string) error

	mu      sync.Mutex
	streams map[string]*streamState
}

// streamState buffers synthesized chunks between polls.
type streamState struct {
	mu      sync.Mutex
	pending []stream.Chunk
	failure string
	cancel  context.CancelFunc
}

// New creates a Provider talking to the endpoint with the given key and
// model. An empty endpoint uses the platform default.
func New(endpoint, apiKey, model string, log *logging.Logger) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	client := openai.NewClient(opts...)

	p := &Provider{
		model:   model,
		log:     log.WithComponent("openaiprovider"),
		streams: make(map[string]*streamState),
	}
	p.complete = func(ctx context.Context, prompt string, deltas chan<- string) error {
		s := client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(p.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(prompt),
			},
		})
		for s.Next() {
			chunk := s.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				select {
				case deltas <- delta:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return s.Err()
	}
	return p
}

// StreamStart opens a completion under handle.ID. The remote call runs in
// the background; PollChunks drains its chunks.
func (p *Provider) StreamStart(ctx context.Context, req *rpc.CompletionRequest, handle rpc.StreamHandle) error {
	if req.RelyOnFileSync {
		return fmt.Errorf("openaiprovider: delta-based requests: %w", ErrUnsupported)
	}

	// The stream outlives the caller's context: supersession must not kill
	// it. Only Cancel does.
	runCtx, cancel := context.WithCancel(context.Background())
	st := &streamState{cancel: cancel}

	p.mu.Lock()
	p.streams[handle.ID] = st
	p.mu.Unlock()

	st.push(
		stream.ModelInfo{Name: p.model},
		stream.RangeToReplace{
			Range: editor.NewLineRange(req.Cursor.Line, req.Cursor.Line),
		},
	)

	prompt := buildPrompt(req)
	deltas := make(chan string)
	errc := make(chan error, 1)
	go func() {
		errc <- p.complete(runCtx, prompt, deltas)
		close(deltas)
	}()
	go func() {
		defer cancel()
		for delta := range deltas {
			st.push(stream.Text{Content: delta})
		}
		if err := <-errc; err != nil {
			p.log.Debug("stream %s failed: %v", handle.ID, err)
			st.fail(err.Error())
			return
		}
		st.push(stream.DoneEdit{}, stream.Terminator{})
	}()
	return nil
}

// PollChunks returns the chunks buffered since the previous poll.
func (p *Provider) PollChunks(ctx context.Context, id string) ([]stream.Chunk, error) {
	p.mu.Lock()
	st, ok := p.streams[id]
	p.mu.Unlock()
	if !ok {
		return nil, &rpc.RequestError{Reason: fmt.Sprintf("unknown stream %q", id)}
	}

	chunks, failure := st.drain()
	if failure != "" && len(chunks) == 0 {
		p.forget(id)
		return nil, &rpc.RequestError{Reason: failure}
	}
	for _, c := range chunks {
		if _, done := c.(stream.Terminator); done {
			p.forget(id)
		}
	}
	return chunks, nil
}

// Cancel aborts the background completion.
func (p *Provider) Cancel(ctx context.Context, id string) error {
	p.mu.Lock()
	st, ok := p.streams[id]
	delete(p.streams, id)
	p.mu.Unlock()
	if ok {
		st.cancel()
	}
	return nil
}

// UploadFull is not supported; callers fall back to inline content.
func (p *Provider) UploadFull(ctx context.Context, path, content string, version int, hash string) error {
	return ErrUnsupported
}

// SyncIncremental is not supported; callers fall back to inline content.
func (p *Provider) SyncIncremental(ctx context.Context, path string, version int, updates []filesync.SyncRecord, hash string) error {
	return ErrUnsupported
}

func (p *Provider) forget(id string) {
	p.mu.Lock()
	delete(p.streams, id)
	p.mu.Unlock()
}

func (st *streamState) push(chunks ...stream.Chunk) {
	st.mu.Lock()
	st.pending = append(st.pending, chunks...)
	st.mu.Unlock()
}

func (st *streamState) fail(reason string) {
	st.mu.Lock()
	st.failure = reason
	st.mu.Unlock()
}

func (st *streamState) drain() ([]stream.Chunk, string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	chunks := st.pending
	st.pending = nil
	return chunks, st.failure
}

// buildPrompt renders the document window around the cursor with the
// completion line marked.
func buildPrompt(req *rpc.CompletionRequest) string {
	lines := strings.Split(strings.ReplaceAll(req.Content, "\r\n", "\n"), "\n")
	first := req.Cursor.Line - contextLines/2
	if first < 0 {
		first = 0
	}
	last := first + contextLines
	if last > len(lines) {
		last = len(lines)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", req.Path)
	if req.LanguageID != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.LanguageID)
	}
	b.WriteString("\n")
	for i := first; i < last; i++ {
		if i == req.Cursor.Line {
			fmt.Fprintf(&b, ">>> %s\n", lines[i])
		} else {
			b.WriteString(lines[i])
			b.WriteByte('\n')
		}
	}
	return b.String()
}
