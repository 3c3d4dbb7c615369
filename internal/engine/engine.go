// Package engine assembles the completion services behind one
// editor-facing API. The host editor feeds it document snapshots, edits,
// and cursor movement; the engine owns admission, sync, streaming, and the
// suggestion lifecycle.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/admission"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/clock"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/completion"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/config"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/filesync"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/logging"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/rpc"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/rpc/openaiprovider"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/validate"
)

// Provider names accepted by the `provider` config key.
const (
	ProviderNative = "native"
	ProviderOpenAI = "openai"
)

// Engine is the top-level completion engine.
type Engine struct {
	log         *logging.Logger
	clk         clock.Clock
	store       *config.Store
	client      rpc.Client
	admitter    *admission.Controller
	syncer      *filesync.Coordinator
	orch        *completion.Orchestrator
	docs        *documentStore
	workspaceID string
	unsubscribe func()
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	clk    clock.Clock
	client rpc.Client
}

// WithClock replaces the engine's clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clk = c }
}

// WithClient replaces the wire client chosen from config.
func WithClient(c rpc.Client) Option {
	return func(o *options) { o.client = c }
}

// New wires an engine from its configuration.
func New(store *config.Store, log *logging.Logger, opts ...Option) (*Engine, error) {
	o := options{clk: clock.System}
	for _, opt := range opts {
		opt(&o)
	}

	settings := store.Settings()
	client := o.client
	if client == nil {
		var err error
		client, err = newClient(settings, log)
		if err != nil {
			return nil, err
		}
	}

	docs := newDocumentStore()
	settingsFn := store.Settings

	admitter := admission.New(
		admission.WithClock(o.clk),
		admission.WithLogger(log),
		admission.WithTunables(tunablesFrom(settings)),
	)
	syncer := filesync.NewCoordinator(client, docs.Document, settingsFn, o.clk, log)

	heuristics := validate.NewHeuristics(log, func() validate.Checks {
		s := settingsFn()
		return validate.Checks{
			NoOp:                s.CheckNoOp,
			WhitespaceOnly:      s.CheckWhitespaceOnly,
			DuplicatingLine:     s.CheckDuplicatingLine,
			RepeatedContent:     s.CheckRepeatedContent,
			AllowWhitespaceOnly: s.AllowWhitespaceOnly,
		}
	})
	suppressor := validate.NewSuppressor(o.clk, func() validate.SuppressPolicy {
		s := settingsFn()
		return validate.SuppressPolicy{Radius: s.SuppressRadius, AcceptWindow: s.AcceptRecencyWindow}
	})

	e := &Engine{
		log:         log.WithComponent("engine"),
		clk:         o.clk,
		store:       store,
		client:      client,
		admitter:    admitter,
		syncer:      syncer,
		docs:        docs,
		workspaceID: uuid.NewString(),
	}
	e.orch = completion.NewOrchestrator(completion.Deps{
		Client:      client,
		Admission:   admitter,
		Sync:        syncer,
		Heuristics:  heuristics,
		Suppressor:  suppressor,
		Session:     docs,
		Settings:    settingsFn,
		Clock:       o.clk,
		Logger:      log,
		WorkspaceID: e.workspaceID,
	})

	// Tunables follow config changes, including server-pushed updates
	// written through the store.
	e.unsubscribe = store.Subscribe(func(s config.Settings) {
		admitter.SetTunables(tunablesFrom(s))
	})
	return e, nil
}

// newClient picks the wire backend named by the provider config key.
func newClient(s config.Settings, log *logging.Logger) (rpc.Client, error) {
	switch s.Provider {
	case ProviderNative, "":
		return rpc.NewHTTPClient(s.Endpoint, s.APIKey, log), nil
	case ProviderOpenAI:
		return openaiprovider.New(s.Endpoint, s.APIKey, s.Model, log), nil
	default:
		return nil, fmt.Errorf("engine: unknown provider %q", s.Provider)
	}
}

func tunablesFrom(s config.Settings) admission.Tunables {
	return admission.Tunables{
		ClientDebounce: s.ClientDebounce,
		TotalDebounce:  s.TotalDebounce,
		MaxRequestAge:  s.MaxRequestAge,
	}
}

// OpenDocument registers a buffer snapshot.
func (e *Engine) OpenDocument(doc editor.Document) {
	e.docs.put(doc)
	e.log.Debug("opened %s@%d", doc.Path, doc.Version)
}

// DocumentEdited replaces the snapshot and queues the edit for sync.
func (e *Engine) DocumentEdited(doc editor.Document, deltas []editor.EditDelta) {
	e.docs.put(doc)
	e.syncer.RecordEdit(filesync.SyncRecord{
		ModelVersion:   doc.Version,
		Path:           doc.Path,
		Updates:        deltas,
		ExpectedLength: len(doc.Content),
	})
}

// CloseDocument tears down all per-document state.
func (e *Engine) CloseDocument(path string) {
	e.orch.DocumentClosed(path)
	e.syncer.CloseDocument(path)
	e.docs.drop(path)
	e.log.Debug("closed %s", path)
}

// CursorMoved updates the tracked cursor. causedByJump marks moves the
// editor performed for a prediction target.
func (e *Engine) CursorMoved(path string, pos editor.Position, causedByJump bool) {
	e.docs.setCursor(path, pos)
	e.orch.CursorMoved(causedByJump)
}

// SetVisibleRange records the on-screen span and flushes pending sync for
// the document immediately.
func (e *Engine) SetVisibleRange(ctx context.Context, path string, r editor.LineRange) {
	e.docs.setVisible(path, r)
	e.syncer.NotifyVisible(ctx, path)
}

// SetDiagnostics replaces the document's diagnostics.
func (e *Engine) SetDiagnostics(path string, diags []editor.Diagnostic) {
	e.docs.setDiagnostics(path, diags)
}

// RequestCompletion asks for a suggestion at the current cursor. A nil
// result means no suggestion; failures never surface here.
func (e *Engine) RequestCompletion(ctx context.Context, path string, manual bool) *completion.Suggestion {
	return e.orch.RequestCompletion(ctx, completion.Trigger{Path: path, Manual: manual})
}

// Accept reports an accepted suggestion and returns what to do next.
func (e *Engine) Accept(path, suggestionID, bindingID string, line int) completion.AcceptOutcome {
	return e.orch.Accept(path, suggestionID, bindingID, line)
}

// PartialAccept reports that only a prefix of the suggestion was taken.
func (e *Engine) PartialAccept(path, suggestionID, bindingID string) {
	e.orch.PartialAccept(path, suggestionID, bindingID)
}

// Reject reports a rejected suggestion.
func (e *Engine) Reject(path, suggestionID, bindingID string) {
	e.orch.Reject(path, suggestionID, bindingID)
}

// MarkShown reports that the suggestion was rendered.
func (e *Engine) MarkShown(suggestionID string) {
	e.orch.MarkShown(suggestionID)
}

// EndOfLife reports a terminal transition for a suggestion.
func (e *Engine) EndOfLife(path, suggestionID, bindingID string, reason completion.EndReason) {
	e.orch.EndOfLife(path, suggestionID, bindingID, reason)
}

// CancelRequest hard-cancels the document's in-flight request on explicit
// user demand.
func (e *Engine) CancelRequest(ctx context.Context, path string) {
	e.orch.CancelRequest(ctx, path)
}

// SyncState exposes the document's sync state, mainly for status surfaces.
func (e *Engine) SyncState(path string) (filesync.SyncState, bool) {
	return e.syncer.State(path)
}

// Close releases the engine's subscriptions.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}
