package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
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

// fakeSession serves static documents.
type fakeSession struct {
	mu      sync.Mutex
	docs    map[string]editor.Document
	cursors map[string]editor.Position
}

func newFakeSession(lines int) *fakeSession {
	var b strings.Builder
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&b, "call%d();\n", i)
	}
	return &fakeSession{
		docs: map[string]editor.Document{
			"main.go": {Path: "main.go", Content: b.String(), Version: 1, EOL: editor.EOLUnix, LanguageID: "go"},
		},
		cursors: map[string]editor.Position{"main.go": {Line: 0, Column: 0}},
	}
}

func (s *fakeSession) Document(path string) (editor.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[path]
	return d, ok
}

func (s *fakeSession) Cursor(path string) (editor.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cursors[path]
	return c, ok
}

func (s *fakeSession) VisibleRange(path string) (editor.LineRange, bool) {
	return editor.LineRange{}, false
}

func (s *fakeSession) Diagnostics(path string) []editor.Diagnostic { return nil }

func (s *fakeSession) bumpVersion(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docs[path]
	d.Version++
	s.docs[path] = d
}

// fakeClient scripts one chunk sequence per successful StreamStart. When
// gateFirst is set, polls of the stream opened by start number gateIndex
// (default the first) block until the gate closes.
type fakeClient struct {
	mu        sync.Mutex
	scripts   [][]stream.Chunk
	startErrs []error
	gateFirst chan struct{}
	gateIndex int

	starts    []string
	requests  []*rpc.CompletionRequest
	streams   map[string][]stream.Chunk
	gatedID   string
	cancelled []string
}

func newFakeClient(scripts ...[]stream.Chunk) *fakeClient {
	return &fakeClient{scripts: scripts, streams: make(map[string][]stream.Chunk)}
}

func (f *fakeClient) StreamStart(ctx context.Context, req *rpc.CompletionRequest, h rpc.StreamHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.starts)
	f.starts = append(f.starts, h.ID)
	f.requests = append(f.requests, req)
	if i < len(f.startErrs) && f.startErrs[i] != nil {
		return f.startErrs[i]
	}
	if len(f.scripts) > 0 {
		f.streams[h.ID] = f.scripts[0]
		f.scripts = f.scripts[1:]
	}
	if i == f.gateIndex && f.gateFirst != nil {
		f.gatedID = h.ID
	}
	return nil
}

func (f *fakeClient) PollChunks(ctx context.Context, id string) ([]stream.Chunk, error) {
	f.mu.Lock()
	gated := id == f.gatedID
	f.mu.Unlock()
	if gated {
		select {
		case <-f.gateFirst:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	chunks := f.streams[id]
	f.streams[id] = nil
	return chunks, nil
}

func (f *fakeClient) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeClient) UploadFull(ctx context.Context, path, content string, version int, hash string) error {
	return nil
}

func (f *fakeClient) SyncIncremental(ctx context.Context, path string, version int, updates []filesync.SyncRecord, hash string) error {
	return nil
}

func (f *fakeClient) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeClient) request(i int) *rpc.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func testSettings() config.Settings {
	s := config.Default()
	s.StreamRetryDelay = time.Millisecond
	s.PollInterval = 100 * time.Microsecond
	s.PayloadRetryDelay = 100 * time.Microsecond
	return s
}

func newTestOrchestrator(client rpc.Client, session editor.Session, settings config.Settings, tunables admission.Tunables) *Orchestrator {
	settingsFn := func() config.Settings { return settings }
	adm := admission.New(admission.WithTunables(tunables), admission.WithLogger(logging.Null))
	coord := filesync.NewCoordinator(client,
		func(path string) (editor.Document, bool) { return session.Document(path) },
		settingsFn, clock.System, logging.Null)
	checks := validate.AllChecks()
	return NewOrchestrator(Deps{
		Client:      client,
		Admission:   adm,
		Sync:        coord,
		Heuristics:  validate.NewHeuristics(logging.Null, func() validate.Checks { return checks }),
		Suppressor:  validate.NewSuppressor(clock.System, func() validate.SuppressPolicy { return validate.DefaultSuppressPolicy() }),
		Session:     session,
		Settings:    settingsFn,
		Clock:       clock.System,
		Logger:      logging.Null,
		WorkspaceID: "ws-test",
	})
}

func fastTunables() admission.Tunables {
	return admission.Tunables{
		ClientDebounce: time.Millisecond,
		TotalDebounce:  5 * time.Millisecond,
		MaxRequestAge:  time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func singleEditScript(line int, text string) []stream.Chunk {
	return []stream.Chunk{
		stream.RangeToReplace{Range: editor.NewLineRange(line, line)},
		stream.Text{Content: text},
		stream.DoneEdit{},
		stream.Terminator{},
	}
}

func TestSingleEditSuggestion(t *testing.T) {
	client := newFakeClient(singleEditScript(10, "bar();"))
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if s == nil {
		t.Fatal("expected a suggestion")
	}
	if s.Text != "bar();" {
		t.Errorf("Text = %q", s.Text)
	}
	if s.Range.StartLine != 10 || s.Range.EndLine != 10 {
		t.Errorf("Range = %s, want line 10", s.Range)
	}
	if s.IsInlineEdit {
		t.Error("single-line edit must not be an inline edit")
	}
	if s.NextActionID != "" {
		t.Errorf("NextActionID = %q, want empty with no follow-ups", s.NextActionID)
	}
	if s.CursorTarget != nil {
		t.Error("no prediction target was streamed")
	}

	// A never-synced document sends full content.
	req := client.request(0)
	if req.RelyOnFileSync {
		t.Error("first request must not rely on file sync")
	}
	if req.Content == "" || req.ContentHash == "" {
		t.Error("full content and hash must travel inline")
	}

	// The parallel prepare establishes the sync baseline.
	waitFor(t, func() bool {
		st, ok := o.syncer.State("main.go")
		return ok && st.Synced && st.Streak == 1
	}, "sync baseline never established")
}

func TestFollowupServedWithoutBackendCall(t *testing.T) {
	client := newFakeClient([]stream.Chunk{
		stream.BeginEdit{},
		stream.RangeToReplace{Range: editor.NewLineRange(10, 10)},
		stream.Text{Content: "bar();"},
		stream.DoneEdit{},
		stream.BeginEdit{},
		stream.RangeToReplace{Range: editor.NewLineRange(15, 15)},
		stream.Text{Content: "baz();"},
		stream.DoneEdit{},
		stream.Terminator{},
	})
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	first := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if first == nil || first.Text != "bar();" {
		t.Fatalf("first = %+v, want the line-10 edit", first)
	}
	if first.Range.StartLine != 10 {
		t.Errorf("first covers line %d, want 10", first.Range.StartLine)
	}
	if first.NextActionID == "" {
		t.Error("a queued follow-up must register a next action")
	}

	outcome := o.Accept("main.go", first.RequestID, first.BindingID, first.Range.StartLine)
	if !outcome.Retrigger {
		t.Fatal("accept with queued edits should ask for a re-trigger")
	}

	// The accepted edit bumps the buffer version; the follow-up still serves.
	session.bumpVersion("main.go")
	second := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if second == nil || second.Text != "baz();" {
		t.Fatalf("second = %+v, want the line-15 edit", second)
	}
	if second.Range.StartLine != 15 {
		t.Errorf("second covers line %d, want 15", second.Range.StartLine)
	}
	if got := client.startCount(); got != 1 {
		t.Errorf("backend calls = %d, want 1 (follow-up served from cache)", got)
	}
}

func TestFollowupDiscardedAfterVersionDrift(t *testing.T) {
	client := newFakeClient([]stream.Chunk{
		stream.RangeToReplace{Range: editor.NewLineRange(10, 10)},
		stream.Text{Content: "bar();"},
		stream.DoneEdit{},
		stream.RangeToReplace{Range: editor.NewLineRange(15, 15)},
		stream.Text{Content: "baz();"},
		stream.DoneEdit{},
		stream.Terminator{},
	}, singleEditScript(20, "fresh();"))
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"}); s == nil {
		t.Fatal("expected the first suggestion")
	}

	// Two edits later the follow-up's line numbers are stale.
	session.bumpVersion("main.go")
	session.bumpVersion("main.go")
	s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if s == nil || s.Text != "fresh();" {
		t.Fatalf("s = %+v, want a fresh pipeline result", s)
	}
	if got := client.startCount(); got != 2 {
		t.Errorf("backend calls = %d, want 2 after the follow-up was discarded", got)
	}
}

func TestSupersededResultIsCached(t *testing.T) {
	client := newFakeClient(singleEditScript(10, "aaa();"), singleEditScript(12, "bbb();"))
	client.gateFirst = make(chan struct{})
	session := newFakeSession(30)
	// Wide freshness window so the second trigger supersedes the first.
	o := newTestOrchestrator(client, session, testSettings(), admission.Tunables{
		ClientDebounce: time.Millisecond,
		TotalDebounce:  time.Second,
		MaxRequestAge:  10 * time.Second,
	})

	results := make(chan *Suggestion, 1)
	go func() {
		results <- o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	}()
	waitFor(t, func() bool { return client.startCount() == 1 }, "first stream never started")

	second := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if second == nil || second.Text != "bbb();" {
		t.Fatalf("second = %+v, want its own result", second)
	}

	// Let the superseded stream finish: its result must land in the cache,
	// not on the caller.
	close(client.gateFirst)
	select {
	case got := <-results:
		if got != nil {
			t.Fatalf("superseded request returned %+v, want nil", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first request never finished")
	}

	cached := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if cached == nil || cached.Text != "aaa();" {
		t.Fatalf("cached = %+v, want the superseded result", cached)
	}
	if got := client.startCount(); got != 2 {
		t.Errorf("backend calls = %d, want 2 (third trigger hit the cache)", got)
	}
}

func TestStreamRetriesThenSucceeds(t *testing.T) {
	client := newFakeClient(singleEditScript(10, "bar();"))
	client.startErrs = []error{errors.New("boom"), errors.New("boom"), nil}
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if s == nil || s.Text != "bar();" {
		t.Fatalf("s = %+v, want success on the final retry", s)
	}
	if got := client.startCount(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestStreamFailureReturnsNoSuggestion(t *testing.T) {
	client := newFakeClient()
	client.startErrs = []error{errors.New("boom"), errors.New("boom"), errors.New("boom")}
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"}); s != nil {
		t.Fatalf("s = %+v, want nil after exhausted retries", s)
	}
	if got := client.startCount(); got != 3 {
		t.Errorf("attempts = %d, want 1 + 2 retries", got)
	}
}

func TestZeroEditsWithPredictionYieldsJumpHint(t *testing.T) {
	client := newFakeClient([]stream.Chunk{
		stream.CursorPredictionTarget{Path: "main.go", Line: 25},
		stream.Terminator{},
	})
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if s == nil {
		t.Fatal("expected a jump hint")
	}
	if s.Text != "" || s.DisplayHint != HintJump {
		t.Errorf("s = %+v, want a zero-text jump hint", s)
	}
	if s.CursorTarget == nil || s.CursorTarget.Line != 25 {
		t.Errorf("CursorTarget = %+v", s.CursorTarget)
	}
}

func TestInvalidCandidateDegradesToJumpHint(t *testing.T) {
	session := newFakeSession(30)
	doc, _ := session.Document("main.go")
	client := newFakeClient([]stream.Chunk{
		stream.RangeToReplace{Range: editor.NewLineRange(2, 2)},
		stream.Text{Content: doc.Line(2)}, // noOp
		stream.DoneEdit{},
		stream.CursorPredictionTarget{Path: "main.go", Line: 25},
		stream.Terminator{},
	})
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if s == nil || s.DisplayHint != HintJump || s.Text != "" {
		t.Fatalf("s = %+v, want degradation to the jump hint", s)
	}
}

func TestInvalidCandidateWithoutPredictionYieldsNothing(t *testing.T) {
	session := newFakeSession(30)
	doc, _ := session.Document("main.go")
	client := newFakeClient([]stream.Chunk{
		stream.RangeToReplace{Range: editor.NewLineRange(2, 2)},
		stream.Text{Content: doc.Line(2)},
		stream.DoneEdit{},
		stream.Terminator{},
	})
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"}); s != nil {
		t.Fatalf("s = %+v, want nil", s)
	}
}

func TestRejectionCooldown(t *testing.T) {
	scripts := [][]stream.Chunk{
		singleEditScript(10, "a();"),
		singleEditScript(11, "b();"),
		singleEditScript(12, "c();"),
	}
	client := newFakeClient(scripts...)
	session := newFakeSession(30)
	settings := testSettings()
	settings.RejectCooldown = 50 * time.Millisecond
	o := newTestOrchestrator(client, session, settings, fastTunables())

	for i := 0; i < 2; i++ {
		s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
		if s == nil {
			t.Fatalf("trigger %d returned nil", i)
		}
		o.Reject("main.go", s.RequestID, s.BindingID)
	}

	// Automatic triggers are suppressed during the cooldown.
	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"}); s != nil {
		t.Fatalf("s = %+v, want nil during cooldown", s)
	}
	if got := client.startCount(); got != 2 {
		t.Errorf("backend calls = %d, cooldown must not reach the backend", got)
	}

	// Manual invocation bypasses it.
	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go", Manual: true}); s == nil {
		t.Error("manual trigger must bypass the cooldown")
	}
}

func TestAcceptResetsRejectionCount(t *testing.T) {
	client := newFakeClient(
		singleEditScript(10, "a();"),
		singleEditScript(11, "b();"),
		singleEditScript(12, "c();"),
	)
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	o.Reject("main.go", s.RequestID, s.BindingID)

	s = o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	o.Accept("main.go", s.RequestID, s.BindingID, s.Range.StartLine)

	// One more reject is below the threshold again.
	s = o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if s == nil {
		t.Fatal("trigger after accept returned nil")
	}
	o.Reject("main.go", s.RequestID, s.BindingID)
	if o.inCooldown("main.go") {
		t.Error("cooldown armed although an accept reset the streak")
	}
}

func TestDisabledAndExcludedLanguage(t *testing.T) {
	client := newFakeClient(singleEditScript(10, "bar();"))
	session := newFakeSession(30)

	settings := testSettings()
	settings.Enabled = false
	o := newTestOrchestrator(client, session, settings, fastTunables())
	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"}); s != nil {
		t.Fatal("disabled engine still produced a suggestion")
	}

	settings = testSettings()
	settings.ExcludedLanguages = []string{"go"}
	o = newTestOrchestrator(client, session, settings, fastTunables())
	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"}); s != nil {
		t.Fatal("excluded language still produced a suggestion")
	}
	if got := client.startCount(); got != 0 {
		t.Errorf("backend calls = %d, want 0", got)
	}
}

func TestCommentGating(t *testing.T) {
	session := newFakeSession(5)
	session.mu.Lock()
	d := session.docs["main.go"]
	d.Content = "// a comment\ncall();\n"
	session.docs["main.go"] = d
	session.mu.Unlock()

	client := newFakeClient(singleEditScript(1, "bar();"))
	settings := testSettings()
	settings.TriggerInComments = false
	o := newTestOrchestrator(client, session, settings, fastTunables())

	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"}); s != nil {
		t.Fatal("comment line should not trigger")
	}
	if got := client.startCount(); got != 0 {
		t.Errorf("backend calls = %d, want 0", got)
	}

	// A manual trigger on the same line still goes through.
	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go", Manual: true}); s == nil {
		t.Error("manual trigger on a comment line returned nil")
	}
}

func TestCancelRequestTearsDownRemoteStream(t *testing.T) {
	client := newFakeClient(singleEditScript(10, "bar();"))
	client.gateFirst = make(chan struct{})
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	results := make(chan *Suggestion, 1)
	go func() {
		results <- o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	}()
	waitFor(t, func() bool { return client.startCount() == 1 }, "stream never started")

	o.CancelRequest(context.Background(), "main.go")

	select {
	case got := <-results:
		if got != nil {
			t.Fatalf("cancelled request returned %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not abort the pipeline")
	}

	client.mu.Lock()
	cancelled := len(client.cancelled)
	client.mu.Unlock()
	if cancelled != 1 {
		t.Errorf("remote cancels = %d, want 1", cancelled)
	}
}

func TestStreamCapSupersedesOldest(t *testing.T) {
	client := newFakeClient()
	session := newFakeSession(30)
	settings := testSettings()
	settings.MaxTrackedRequests = 2
	o := newTestOrchestrator(client, session, settings, fastTunables())

	// Register three pipelines directly; triggers spaced outside the
	// debounce window so none supersedes another on admission.
	var ids []string
	for i := 0; i < 3; i++ {
		adm := o.admitter.RunRequest(context.Background())
		o.registerRequest(adm, "main.go", settings)
		ids = append(ids, adm.ID)
		time.Sleep(6 * time.Millisecond)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active[ids[0]].superseded {
		t.Error("oldest request should be soft-superseded at the cap")
	}
	for _, id := range ids[1:] {
		if o.active[id].superseded {
			t.Errorf("request %s superseded below the cap", id)
		}
	}
}

func TestModelInfoPersists(t *testing.T) {
	client := newFakeClient([]stream.Chunk{
		stream.ModelInfo{IsFused: true, IsMultidiff: true, Name: "fusion-1"},
		stream.RangeToReplace{Range: editor.NewLineRange(10, 10)},
		stream.Text{Content: "bar();"},
		stream.DoneEdit{},
		stream.Terminator{},
	})
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"}); s == nil {
		t.Fatal("expected a suggestion")
	}
	mi, ok := o.ModelInfo()
	if !ok || !mi.IsFused || mi.Name != "fusion-1" {
		t.Errorf("ModelInfo = %+v, %v", mi, ok)
	}
}

func TestDocumentClosedClearsState(t *testing.T) {
	client := newFakeClient([]stream.Chunk{
		stream.RangeToReplace{Range: editor.NewLineRange(10, 10)},
		stream.Text{Content: "bar();"},
		stream.DoneEdit{},
		stream.RangeToReplace{Range: editor.NewLineRange(15, 15)},
		stream.Text{Content: "baz();"},
		stream.DoneEdit{},
		stream.Terminator{},
	}, singleEditScript(20, "fresh();"))
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	if s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"}); s == nil {
		t.Fatal("expected a suggestion")
	}
	o.DocumentClosed("main.go")

	// Both the follow-up queue and any cached entries are gone; the next
	// trigger goes to the backend.
	s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if s == nil || s.Text != "fresh();" {
		t.Fatalf("s = %+v, want a fresh result after close", s)
	}
	if got := client.startCount(); got != 2 {
		t.Errorf("backend calls = %d, want 2", got)
	}
}

func TestSuppressedPredictionKeepsEdit(t *testing.T) {
	client := newFakeClient([]stream.Chunk{
		stream.RangeToReplace{Range: editor.NewLineRange(10, 10)},
		stream.Text{Content: "bar();"},
		stream.DoneEdit{},
		// Two lines from the cursor, inside the suppression radius.
		stream.CursorPredictionTarget{Path: "main.go", Line: 2},
		stream.Terminator{},
	})
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if s == nil || s.Text != "bar();" {
		t.Fatalf("s = %+v, want the edit to survive suppression", s)
	}
	if s.CursorTarget != nil {
		t.Errorf("CursorTarget = %+v, want the nearby target dropped", s.CursorTarget)
	}
	if s.NextActionID != "" {
		t.Errorf("NextActionID = %q, want none without a usable target", s.NextActionID)
	}
}

func TestAcceptJumpsToFusedPrediction(t *testing.T) {
	client := newFakeClient([]stream.Chunk{
		stream.RangeToReplace{Range: editor.NewLineRange(10, 10)},
		stream.Text{Content: "bar();"},
		stream.DoneEdit{},
		stream.CursorPredictionTarget{Path: "main.go", Line: 25},
		stream.Terminator{},
	})
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	s := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if s == nil || s.Text != "bar();" {
		t.Fatalf("s = %+v, want the edit", s)
	}
	if s.CursorTarget == nil || s.CursorTarget.Line != 25 {
		t.Fatalf("CursorTarget = %+v, want line 25", s.CursorTarget)
	}
	if s.NextActionID == "" {
		t.Fatal("a fused prediction must register a next action")
	}

	outcome := o.Accept("main.go", s.RequestID, s.BindingID, s.Range.StartLine)
	if outcome.Jump == nil || outcome.Jump.Line != 25 {
		t.Fatalf("outcome = %+v, want a jump to line 25", outcome)
	}
	if outcome.Retrigger {
		t.Error("a fused prediction must not also ask for a re-trigger")
	}

	// The action is consumed by the accept.
	outcome = o.Accept("main.go", s.RequestID, s.BindingID, s.Range.StartLine)
	if outcome.Jump != nil || outcome.Retrigger {
		t.Errorf("second accept outcome = %+v, want nothing", outcome)
	}
}

func TestPartialAcceptKeepsFollowupAvailable(t *testing.T) {
	client := newFakeClient([]stream.Chunk{
		stream.RangeToReplace{Range: editor.NewLineRange(10, 10)},
		stream.Text{Content: "bar();"},
		stream.DoneEdit{},
		stream.RangeToReplace{Range: editor.NewLineRange(15, 15)},
		stream.Text{Content: "baz();"},
		stream.DoneEdit{},
		stream.Terminator{},
	})
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	first := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if first == nil || first.Text != "bar();" {
		t.Fatalf("first = %+v, want the line-10 edit", first)
	}

	// Taking a prefix of the suggestion edits the buffer twice; the
	// recorded partial re-anchors the follow-up window so the remainder
	// still serves where plain drift would discard it.
	o.PartialAccept("main.go", first.RequestID, first.BindingID)
	session.bumpVersion("main.go")
	session.bumpVersion("main.go")

	second := o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	if second == nil || second.Text != "baz();" {
		t.Fatalf("second = %+v, want the queued follow-up", second)
	}
	if got := client.startCount(); got != 1 {
		t.Errorf("backend calls = %d, want 1", got)
	}
}

func TestCancelDuringRetryCancelsLiveStream(t *testing.T) {
	client := newFakeClient(singleEditScript(10, "bar();"))
	client.startErrs = []error{errors.New("cold start")}
	client.gateFirst = make(chan struct{})
	client.gateIndex = 1
	session := newFakeSession(30)
	o := newTestOrchestrator(client, session, testSettings(), fastTunables())

	results := make(chan *Suggestion, 1)
	go func() {
		results <- o.RequestCompletion(context.Background(), Trigger{Path: "main.go"})
	}()
	waitFor(t, func() bool { return client.startCount() == 2 }, "retry never started")

	o.CancelRequest(context.Background(), "main.go")

	select {
	case got := <-results:
		if got != nil {
			t.Fatalf("cancelled request returned %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not abort the pipeline")
	}

	client.mu.Lock()
	cancelled := append([]string(nil), client.cancelled...)
	client.mu.Unlock()
	if len(cancelled) != 1 || !strings.HasSuffix(cancelled[0], "-r1") {
		t.Errorf("cancelled = %v, want the retry attempt's stream", cancelled)
	}
}
