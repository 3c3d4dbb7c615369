package completion

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/admission"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/clock"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/config"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/filesync"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/logging"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/rpc"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/stream"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/validate"
)

// Trigger is one completion request from the editor layer.
type Trigger struct {
	Path string
	// Manual marks an explicit user invocation, which bypasses comment
	// gating and the rejection cooldown.
	Manual bool
}

// AcceptOutcome is what accepting a suggestion sets in motion.
type AcceptOutcome struct {
	// Jump asks the editor to move the cursor.
	Jump *stream.CursorPredictionTarget
	// Retrigger asks the editor to request another completion; the
	// follow-up queue will serve it without a backend call.
	Retrigger bool
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Client      rpc.Client
	Admission   *admission.Controller
	Sync        *filesync.Coordinator
	Heuristics  *validate.Heuristics
	Suppressor  *validate.Suppressor
	Session     editor.Session
	Settings    func() config.Settings
	Clock       clock.Clock
	Logger      *logging.Logger
	WorkspaceID string
}

// liveRequest is one tracked in-flight pipeline.
type liveRequest struct {
	id         string
	path       string
	start      time.Time
	cancel     context.CancelFunc
	superseded bool
	// streamID is the remote stream of the attempt in flight; retries open
	// fresh streams under synthesized ids.
	streamID string
}

// rejectionState tracks consecutive rejects per document.
type rejectionState struct {
	consecutive   int
	cooldownUntil time.Time
}

// Orchestrator runs the per-document completion pipeline. New triggers are
// served, in priority order, from the follow-up queue, the superseded-
// suggestion cache, or a fresh streaming request.
type Orchestrator struct {
	clk         clock.Clock
	log         *logging.Logger
	client      rpc.Client
	admitter    *admission.Controller
	syncer      *filesync.Coordinator
	heuristics  *validate.Heuristics
	suppressor  *validate.Suppressor
	session     editor.Session
	settings    func() config.Settings
	cache       *SuggestionCache
	workspaceID string
	randFloat   func() float64

	mu          sync.Mutex
	current     map[string]string // path -> current request id
	active      map[string]*liveRequest
	followups   map[string]*FollowupSession // by path
	bindings    map[string]map[string]string
	nextActions map[string]NextAction
	rejections  map[string]*rejectionState
	partials    map[string]bool
	model       stream.ModelInfo
	haveModel   bool
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{
		clk:         deps.Clock,
		log:         deps.Logger.WithComponent("completion"),
		client:      deps.Client,
		admitter:    deps.Admission,
		syncer:      deps.Sync,
		heuristics:  deps.Heuristics,
		suppressor:  deps.Suppressor,
		session:     deps.Session,
		settings:    deps.Settings,
		cache:       NewSuggestionCache(deps.Clock, deps.Settings),
		workspaceID: deps.WorkspaceID,
		randFloat:   rand.Float64,
		current:     make(map[string]string),
		active:      make(map[string]*liveRequest),
		followups:   make(map[string]*FollowupSession),
		bindings:    make(map[string]map[string]string),
		nextActions: make(map[string]NextAction),
		rejections:  make(map[string]*rejectionState),
		partials:    make(map[string]bool),
	}
}

// RequestCompletion serves a trigger. A nil result means "no suggestion";
// failures never propagate to the editor layer.
func (o *Orchestrator) RequestCompletion(ctx context.Context, trig Trigger) *Suggestion {
	settings := o.settings()
	if !settings.Enabled {
		return nil
	}
	doc, ok := o.session.Document(trig.Path)
	if !ok {
		return nil
	}
	if settings.LanguageExcluded(doc.LanguageID) {
		return nil
	}
	cursor, _ := o.session.Cursor(trig.Path)
	if !trig.Manual {
		if !settings.TriggerInComments && inComment(doc, cursor.Line) {
			return nil
		}
		if o.inCooldown(trig.Path) {
			return nil
		}
	}

	if s := o.takeFollowup(trig.Path, doc.Version); s != nil {
		o.log.Debug("served %s from follow-up queue", trig.Path)
		return s
	}
	if s, ok := o.cache.Take(doc.Key(), doc.Version); ok {
		o.log.Debug("served %s from suggestion cache", trig.Path)
		return &s
	}
	return o.runPipeline(ctx, trig, cursor, settings)
}

// runPipeline executes the fresh-request path:
// admit -> debounce -> sync -> stream -> validate -> resolve.
func (o *Orchestrator) runPipeline(ctx context.Context, trig Trigger, cursor editor.Position, settings config.Settings) *Suggestion {
	adm := o.admitter.RunRequest(ctx)
	o.registerRequest(adm, trig.Path, settings)
	defer o.finishRequest(adm.ID)

	if o.admitter.ShouldDebounce(adm.Ctx, adm.ID) {
		o.log.Debug("request %s debounced", adm.ID)
		return nil
	}

	// Re-snapshot after the debounce wait; the buffer may have moved.
	doc, ok := o.session.Document(trig.Path)
	if !ok {
		return nil
	}

	payload := o.syncer.SyncPayload(adm.Ctx, trig.Path, doc.Version)
	// Establish or advance the sync baseline in parallel with the request.
	go func() {
		if err := o.syncer.PrepareDocument(context.Background(), doc); err != nil {
			o.log.Debug("background sync of %s: %v", trig.Path, err)
		}
	}()

	req := o.buildRequest(trig, doc, cursor, payload, settings)
	result, err := o.streamWithRetries(adm.Ctx, req, adm, settings)
	if err != nil {
		o.log.Warn("request %s failed: %v", adm.ID, err)
		return nil
	}
	if result.Model != nil {
		o.mu.Lock()
		o.model = *result.Model
		o.haveModel = true
		o.mu.Unlock()
	}

	return o.resolve(adm, trig.Path, doc, cursor, result, settings)
}

// registerRequest tracks the new pipeline, soft-supersedes the requests the
// admission layer named, and enforces the tracked-stream cap by superseding
// the oldest.
func (o *Orchestrator) registerRequest(adm admission.Admission, path string, settings config.Settings) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.active[adm.ID] = &liveRequest{
		id:     adm.ID,
		path:   path,
		start:  adm.Start,
		cancel: adm.Cancel,
	}
	o.current[path] = adm.ID

	for _, id := range adm.IDsToCancel {
		if lr, ok := o.active[id]; ok {
			lr.superseded = true
		}
	}

	tracked := 0
	for _, lr := range o.active {
		if !lr.superseded {
			tracked++
		}
	}
	if tracked > settings.MaxTrackedRequests {
		var oldest *liveRequest
		for _, lr := range o.active {
			if lr.superseded || lr.id == adm.ID {
				continue
			}
			if oldest == nil || lr.start.Before(oldest.start) {
				oldest = lr
			}
		}
		if oldest != nil {
			o.log.Debug("stream cap reached, superseding %s", oldest.id)
			oldest.superseded = true
		}
	}
}

func (o *Orchestrator) finishRequest(id string) {
	o.admitter.Complete(id)
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

// buildRequest assembles the wire payload. Full content travels inline
// unless the sync coordinator vouches for the server's copy; a hash rides
// along occasionally even then, so the server can detect drift.
func (o *Orchestrator) buildRequest(trig Trigger, doc editor.Document, cursor editor.Position, payload filesync.Payload, settings config.Settings) *rpc.CompletionRequest {
	req := &rpc.CompletionRequest{
		WorkspaceID:       o.workspaceID,
		ControlToken:      settings.ControlToken,
		Path:              doc.Path,
		LanguageID:        doc.LanguageID,
		Version:           doc.Version,
		Cursor:            cursor,
		RelyOnFileSync:    payload.RelyOnFileSync,
		Updates:           payload.Updates,
		Model:             settings.Model,
		ManuallyTriggered: trig.Manual,
	}
	if payload.RelyOnFileSync {
		if o.randFloat() < settings.HashProbability {
			req.ContentHash = filesync.ContentHash(doc.Content)
		}
	} else {
		req.Content = doc.Content
		req.ContentHash = filesync.ContentHash(doc.Content)
	}
	if vr, ok := o.session.VisibleRange(doc.Path); ok {
		req.VisibleRange = &vr
	}
	if settings.DiagnosticsHints {
		req.Diagnostics = o.session.Diagnostics(doc.Path)
	}
	return req
}

// streamWithRetries runs the stream up to 1 + StreamRetries times. Each
// attempt opens a distinct remote stream.
func (o *Orchestrator) streamWithRetries(ctx context.Context, req *rpc.CompletionRequest, adm admission.Admission, settings config.Settings) (stream.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= settings.StreamRetries; attempt++ {
		if attempt > 0 {
			if err := o.clk.Sleep(ctx, settings.StreamRetryDelay); err != nil {
				return stream.Result{}, err
			}
			o.log.Debug("retrying request %s (attempt %d)", adm.ID, attempt+1)
		}
		id := adm.ID
		if attempt > 0 {
			id = fmt.Sprintf("%s-r%d", adm.ID, attempt)
		}
		o.mu.Lock()
		if lr, ok := o.active[adm.ID]; ok {
			lr.streamID = id
		}
		o.mu.Unlock()
		handle := rpc.StreamHandle{ID: id, Start: adm.Start}
		result, err := o.streamOnce(ctx, req, handle, settings)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return stream.Result{}, lastErr
}

// streamOnce drives one start/poll cycle through the decoder until the
// Terminator. Cancellation is cooperative, checked between polls.
func (o *Orchestrator) streamOnce(ctx context.Context, req *rpc.CompletionRequest, handle rpc.StreamHandle, settings config.Settings) (stream.Result, error) {
	if err := o.client.StreamStart(ctx, req, handle); err != nil {
		return stream.Result{}, err
	}

	dec := stream.NewDecoder()
	for {
		chunks, err := o.client.PollChunks(ctx, handle.ID)
		if err != nil {
			return stream.Result{}, err
		}
		done := false
		for _, c := range chunks {
			if dec.Feed(c) {
				done = true
				break
			}
		}
		if done {
			return dec.Result(), nil
		}
		if err := o.clk.Sleep(ctx, settings.PollInterval); err != nil {
			return stream.Result{}, err
		}
	}
}

// resolve turns a decoded stream into the returned suggestion. A result
// that finished after being superseded is cached, never discarded.
func (o *Orchestrator) resolve(adm admission.Admission, path string, doc editor.Document, cursor editor.Position, result stream.Result, settings config.Settings) *Suggestion {
	target := o.usableTarget(result.CursorTarget, path, cursor.Line, settings)

	var primary *Suggestion
	if len(result.Edits) == 0 {
		primary = jumpHint(adm.ID, target)
	} else {
		first := result.Edits[0]
		valid, reason := o.heuristics.Check(doc, first.Range.StartLine, first.Range.EndLine, first.Text)
		if !valid {
			o.log.Debug("request %s candidate rejected: %s", adm.ID, reason)
			primary = jumpHint(adm.ID, target)
		} else {
			primary = editSuggestion(adm.ID, first)
			primary.CursorTarget = target
		}
	}

	o.mu.Lock()
	superseded := o.current[path] != adm.ID
	if lr, ok := o.active[adm.ID]; ok && lr.superseded {
		superseded = true
	}
	o.mu.Unlock()

	if superseded {
		if primary != nil && primary.Text != "" {
			o.cache.Put(*primary, doc.Key(), doc.Version)
		}
		for _, e := range rest(result.Edits) {
			s := editSuggestion(adm.ID, e)
			o.cache.Put(*s, doc.Key(), doc.Version)
		}
		o.log.Debug("request %s superseded, result cached", adm.ID)
		return nil
	}

	if primary == nil || (primary.Text == "" && primary.CursorTarget == nil) {
		return nil
	}
	o.attach(adm.ID, path, doc.Version, primary, rest(result.Edits), target)
	return primary
}

// attach registers follow-ups, next actions, and bindings for a suggestion
// that is actually being returned.
func (o *Orchestrator) attach(reqID, path string, version int, s *Suggestion, followups []stream.Edit, target *stream.CursorPredictionTarget) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(followups) > 0 {
		o.followups[path] = &FollowupSession{
			Path:           path,
			RequestID:      reqID,
			Queue:          followups,
			VersionAtCache: version,
		}
		o.nextActions[reqID] = NextEdit{}
		s.NextActionID = reqID
	} else if target != nil && s.Text != "" {
		o.nextActions[reqID] = FusedCursorPrediction{Target: *target}
		s.NextActionID = reqID
	}
	if s.BindingID != "" {
		o.bindingsFor(path)[s.BindingID] = reqID
	}
}

// takeFollowup pops the next queued edit for the document, discarding the
// session once the buffer has moved too far from where it was cached.
func (o *Orchestrator) takeFollowup(path string, version int) *Suggestion {
	o.mu.Lock()
	defer o.mu.Unlock()

	fs := o.followups[path]
	if fs == nil {
		return nil
	}
	// A partial accept edits the buffer; re-anchor the window so the
	// remainder stays available after the version bump it caused.
	if o.partials[fs.RequestID] {
		delete(o.partials, fs.RequestID)
		fs.VersionAtCache = version
	}
	if version < fs.VersionAtCache || version-fs.VersionAtCache > 1 {
		delete(o.followups, path)
		delete(o.nextActions, fs.RequestID)
		return nil
	}

	edit := fs.Queue[0]
	fs.Queue = fs.Queue[1:]
	s := editSuggestion(fs.RequestID, edit)
	if len(fs.Queue) == 0 {
		delete(o.followups, path)
		delete(o.nextActions, fs.RequestID)
	} else {
		o.nextActions[fs.RequestID] = NextEdit{}
		s.NextActionID = fs.RequestID
	}
	if edit.BindingID != "" {
		o.bindingsFor(path)[edit.BindingID] = fs.RequestID
	}
	return s
}

// Accept records an acceptance and consumes the registered next action.
// line is the first line of the accepted range.
func (o *Orchestrator) Accept(path, suggestionID, bindingID string, line int) AcceptOutcome {
	reqID := o.resolveRequest(path, suggestionID, bindingID)
	o.suppressor.RecordAccept(path, line)

	o.mu.Lock()
	if rs := o.rejections[path]; rs != nil {
		rs.consecutive = 0
	}
	delete(o.partials, reqID)
	action := o.nextActions[reqID]
	delete(o.nextActions, reqID)
	if bindingID != "" {
		delete(o.bindingsFor(path), bindingID)
	}
	o.mu.Unlock()

	switch a := action.(type) {
	case NextEdit:
		return AcceptOutcome{Retrigger: true}
	case FusedCursorPrediction:
		t := a.Target
		return AcceptOutcome{Jump: &t}
	default:
		return AcceptOutcome{}
	}
}

// PartialAccept records that only a prefix was taken. The remainder stays
// live; next actions wait for the final accept.
func (o *Orchestrator) PartialAccept(path, suggestionID, bindingID string) {
	reqID := o.resolveRequest(path, suggestionID, bindingID)
	o.mu.Lock()
	o.partials[reqID] = true
	o.mu.Unlock()
	o.log.Debug("partial accept of %s", reqID)
}

// Reject tears down the request's cached state and advances the rejection
// cooldown for the document.
func (o *Orchestrator) Reject(path, suggestionID, bindingID string) {
	reqID := o.resolveRequest(path, suggestionID, bindingID)
	settings := o.settings()

	o.mu.Lock()
	o.teardownLocked(path, reqID, bindingID)
	rs := o.rejections[path]
	if rs == nil {
		rs = &rejectionState{}
		o.rejections[path] = rs
	}
	rs.consecutive++
	if rs.consecutive >= settings.RejectThreshold {
		rs.cooldownUntil = o.clk.Now().Add(settings.RejectCooldown)
		rs.consecutive = 0
		o.log.Debug("rejection cooldown armed for %s", path)
	}
	o.mu.Unlock()
}

// MarkShown records that the editor displayed the suggestion.
func (o *Orchestrator) MarkShown(suggestionID string) {
	o.log.Debug("suggestion %s shown", suggestionID)
}

// EndOfLife tears down a suggestion's state for any terminal reason.
// Rejection feeds the cooldown; the other reasons do not.
func (o *Orchestrator) EndOfLife(path, suggestionID, bindingID string, reason EndReason) {
	if reason == ReasonRejected {
		o.Reject(path, suggestionID, bindingID)
		return
	}
	reqID := o.resolveRequest(path, suggestionID, bindingID)
	o.mu.Lock()
	o.teardownLocked(path, reqID, bindingID)
	o.mu.Unlock()
	o.log.Debug("suggestion %s ended: %s", reqID, reason)
}

// CancelRequest hard-cancels the document's current request: the local
// pipeline is aborted and the remote stream torn down. Only explicit user
// cancellation reaches here; supersession never does.
func (o *Orchestrator) CancelRequest(ctx context.Context, path string) {
	o.mu.Lock()
	id := o.current[path]
	lr := o.active[id]
	streamID := id
	if lr != nil && lr.streamID != "" {
		streamID = lr.streamID
	}
	delete(o.current, path)
	o.mu.Unlock()
	if lr == nil {
		return
	}

	lr.cancel()
	if err := o.client.Cancel(ctx, streamID); err != nil {
		o.log.Debug("remote cancel of %s: %v", streamID, err)
	}
	o.finishRequest(id)
}

// CursorMoved feeds suppression bookkeeping. causedByJump marks moves the
// engine performed for a prediction target.
func (o *Orchestrator) CursorMoved(causedByJump bool) {
	o.suppressor.RecordCursorMove(causedByJump)
}

// DocumentClosed drops every per-document structure.
func (o *Orchestrator) DocumentClosed(path string) {
	o.mu.Lock()
	if fs := o.followups[path]; fs != nil {
		delete(o.nextActions, fs.RequestID)
	}
	delete(o.followups, path)
	delete(o.bindings, path)
	delete(o.rejections, path)
	delete(o.current, path)
	o.mu.Unlock()
	o.cache.DropDocument(path)
}

// ModelInfo returns the capability flags from the most recent stream.
func (o *Orchestrator) ModelInfo() (stream.ModelInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model, o.haveModel
}

// teardownLocked clears the follow-up queue, bindings, and next action tied
// to a request. Callers hold o.mu.
func (o *Orchestrator) teardownLocked(path, reqID, bindingID string) {
	if fs := o.followups[path]; fs != nil && fs.RequestID == reqID {
		delete(o.followups, path)
	}
	delete(o.nextActions, reqID)
	delete(o.partials, reqID)
	if bindingID != "" {
		delete(o.bindingsFor(path), bindingID)
	}
}

// resolveRequest maps a binding id back to its request, falling back to the
// suggestion id itself.
func (o *Orchestrator) resolveRequest(path, suggestionID, bindingID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if bindingID != "" {
		if id, ok := o.bindings[path][bindingID]; ok {
			return id
		}
	}
	return suggestionID
}

func (o *Orchestrator) bindingsFor(path string) map[string]string {
	m := o.bindings[path]
	if m == nil {
		m = make(map[string]string)
		o.bindings[path] = m
	}
	return m
}

func (o *Orchestrator) inCooldown(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	rs := o.rejections[path]
	return rs != nil && o.clk.Now().Before(rs.cooldownUntil)
}

// usableTarget applies the prediction feature flag and the suppression
// rules. A suppressed prediction drops only the navigation hint; any
// accompanying edit still goes through.
func (o *Orchestrator) usableTarget(t *stream.CursorPredictionTarget, path string, cursorLine int, settings config.Settings) *stream.CursorPredictionTarget {
	if t == nil || !settings.PredictionEnabled {
		return nil
	}
	if o.suppressor.ShouldSuppress(*t, path, cursorLine) {
		o.log.Debug("prediction to %s:%d suppressed", t.Path, t.Line)
		return nil
	}
	return t
}

// editSuggestion builds the suggestion for one decoded edit.
func editSuggestion(reqID string, e stream.Edit) *Suggestion {
	hint := HintInline
	inline := e.Range.Lines() > 1
	if inline {
		hint = HintInlineEdit
	}
	return &Suggestion{
		RequestID:    reqID,
		Text:         e.Text,
		Range:        e.Range,
		BindingID:    e.BindingID,
		DisplayHint:  hint,
		IsInlineEdit: inline,
	}
}

// jumpHint builds a zero-text suggestion for a bare prediction target.
func jumpHint(reqID string, target *stream.CursorPredictionTarget) *Suggestion {
	if target == nil {
		return nil
	}
	return &Suggestion{
		RequestID:    reqID,
		DisplayHint:  HintJump,
		Range:        editor.NewLineRange(target.Line, target.Line),
		CursorTarget: target,
	}
}

// rest returns the edits beyond the first.
func rest(edits []stream.Edit) []stream.Edit {
	if len(edits) <= 1 {
		return nil
	}
	return edits[1:]
}

// inComment reports whether the cursor line looks like a comment. A cheap
// prefix test over common comment leaders; language-exact parsing is not
// worth carrying here.
func inComment(doc editor.Document, line int) bool {
	text := strings.TrimSpace(doc.Line(line))
	for _, leader := range []string{"//", "#", "--", "/*", "*"} {
		if strings.HasPrefix(text, leader) {
			return true
		}
	}
	return false
}
