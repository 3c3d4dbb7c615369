package filesync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/clock"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/config"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/logging"
)

// ErrContentMismatch reports that the server's copy of a document no longer
// matches ours. Uploaders wrap it when the server rejects a delta batch on a
// hash check; the baseline is then unusable and the next flush is full.
var ErrContentMismatch = errors.New("filesync: server content mismatch")

// Uploader is the slice of the RPC surface the coordinator needs.
type Uploader interface {
	// UploadFull replaces the server's copy of the document.
	UploadFull(ctx context.Context, path, content string, version int, hash string) error

	// SyncIncremental applies a delta batch on top of the server's copy.
	SyncIncremental(ctx context.Context, path string, version int, updates []SyncRecord, hash string) error
}

// SyncState is the introspectable per-document sync state.
type SyncState struct {
	// Synced reports whether a server baseline exists.
	Synced bool
	// SyncedVersion is the last acknowledged version.
	SyncedVersion int
	// Streak counts consecutive successful syncs.
	Streak int
}

// Payload is what a completion request carries about document sync.
type Payload struct {
	// RelyOnFileSync means the request may omit full content and trust the
	// server's copy plus Updates.
	RelyOnFileSync bool
	// Updates are the queued deltas the server has not acknowledged yet.
	Updates []SyncRecord
}

// docState is the mutable per-document bookkeeping.
type docState struct {
	queue         *UpdateQueue
	synced        bool
	syncedVersion int
	streak        int
	flushTimer    clock.Timer
}

// Coordinator tracks per-document sync state and decides incremental versus
// full-snapshot uploads. All state is document-scoped; failures never cross
// documents.
type Coordinator struct {
	mu       sync.Mutex
	clk      clock.Clock
	log      *logging.Logger
	uploader Uploader
	settings func() config.Settings
	snapshot func(path string) (editor.Document, bool)
	states   map[string]*docState
}

// NewCoordinator creates a coordinator. snapshot supplies the current
// document for debounced background flushes.
func NewCoordinator(
	uploader Uploader,
	snapshot func(path string) (editor.Document, bool),
	settings func() config.Settings,
	clk clock.Clock,
	log *logging.Logger,
) *Coordinator {
	if settings == nil {
		def := config.Default()
		settings = func() config.Settings { return def }
	}
	return &Coordinator{
		clk:      clk,
		log:      log.WithComponent("filesync"),
		uploader: uploader,
		settings: settings,
		snapshot: snapshot,
		states:   make(map[string]*docState),
	}
}

// RecordEdit queues a local edit and schedules a debounced flush.
func (c *Coordinator) RecordEdit(rec SyncRecord) {
	settings := c.settings()

	c.mu.Lock()
	st := c.stateLocked(rec.Path, settings.MaxQueuedUpdates)
	st.queue.Push(rec)
	if st.flushTimer != nil {
		st.flushTimer.Stop()
	}
	path := rec.Path
	st.flushTimer = c.clk.AfterFunc(settings.SyncDebounce, func() {
		c.flushInBackground(path)
	})
	c.mu.Unlock()
}

// NotifyVisible flushes the document immediately, bypassing the debounce.
// Called when the editor brings the document on screen.
func (c *Coordinator) NotifyVisible(ctx context.Context, path string) {
	c.mu.Lock()
	if st, ok := c.states[path]; ok && st.flushTimer != nil {
		st.flushTimer.Stop()
		st.flushTimer = nil
	}
	c.mu.Unlock()

	if doc, ok := c.docSnapshot(path); ok {
		if err := c.PrepareDocument(ctx, doc); err != nil {
			c.log.Warn("visibility flush failed for %s: %v", path, err)
		}
	}
}

// PrepareDocument brings the server's copy of doc up to date: a full upload
// when no baseline exists, otherwise an incremental flush.
func (c *Coordinator) PrepareDocument(ctx context.Context, doc editor.Document) error {
	settings := c.settings()

	c.mu.Lock()
	st := c.stateLocked(doc.Path, settings.MaxQueuedUpdates)
	synced := st.synced
	c.mu.Unlock()

	if !synced {
		return c.fullUpload(ctx, doc)
	}
	return c.incrementalFlush(ctx, doc, settings)
}

// RelyOnFileSync reports whether a completion request at the given version
// may omit full content. Requires an existing baseline, bounded version
// lag, and a success streak (hysteresis against flapping).
func (c *Coordinator) RelyOnFileSync(path string, version int) bool {
	settings := c.settings()

	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[path]
	if !ok || !st.synced {
		return false
	}
	if st.syncedVersion > version {
		return false
	}
	if version-st.syncedVersion > settings.MaxSyncLag {
		return false
	}
	return st.streak >= settings.MinSyncStreak
}

// SyncPayload gathers the deltas a completion request at the given version
// should carry. When the document cannot be relied on, or a just-made local
// edit does not show up in the queue within the bounded retries, it
// degrades to relyOnFileSync=false for this one request.
func (c *Coordinator) SyncPayload(ctx context.Context, path string, version int) Payload {
	if !c.RelyOnFileSync(path, version) {
		return Payload{RelyOnFileSync: false}
	}

	settings := c.settings()
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		st, ok := c.states[path]
		if !ok {
			c.mu.Unlock()
			return Payload{RelyOnFileSync: false}
		}
		syncedVersion := st.syncedVersion
		queue := st.queue
		c.mu.Unlock()

		// The queue has caught up once it covers the request's version, or
		// nothing newer than the baseline is needed.
		if version <= syncedVersion || queue.Latest() >= version {
			updates := queue.Updates(syncedVersion)
			bounded := updates[:0]
			for _, u := range updates {
				if u.ModelVersion <= version {
					bounded = append(bounded, u)
				}
			}
			return Payload{RelyOnFileSync: true, Updates: bounded}
		}

		if attempt >= settings.PayloadRetries {
			c.log.Debug("sync payload for %s@%d not ready after %d retries", path, version, attempt)
			return Payload{RelyOnFileSync: false}
		}
		if err := c.clk.Sleep(ctx, settings.PayloadRetryDelay); err != nil {
			return Payload{RelyOnFileSync: false}
		}
	}
}

// State returns the sync state for a document.
func (c *Coordinator) State(path string) (SyncState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[path]
	if !ok {
		return SyncState{}, false
	}
	return SyncState{Synced: st.synced, SyncedVersion: st.syncedVersion, Streak: st.streak}, true
}

// QueueLen returns the number of pending records for a document.
func (c *Coordinator) QueueLen(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[path]
	if !ok {
		return 0
	}
	return st.queue.Len()
}

// CloseDocument tears down all sync state for a document.
func (c *Coordinator) CloseDocument(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[path]; ok && st.flushTimer != nil {
		st.flushTimer.Stop()
	}
	delete(c.states, path)
}

// fullUpload sends the whole document. Success establishes the baseline and
// resets the streak to 1; failure zeroes the streak so the next attempt is
// a full upload again.
func (c *Coordinator) fullUpload(ctx context.Context, doc editor.Document) error {
	hash := ContentHash(doc.Content)
	err := c.uploader.UploadFull(ctx, doc.Path, doc.Content, doc.Version, hash)

	settings := c.settings()
	c.mu.Lock()
	st := c.stateLocked(doc.Path, settings.MaxQueuedUpdates)
	if err != nil {
		st.streak = 0
		st.synced = false
		c.mu.Unlock()
		c.log.Warn("full upload of %s@%d failed: %v", doc.Path, doc.Version, err)
		return fmt.Errorf("full upload of %s: %w", doc.Path, err)
	}
	st.synced = true
	st.syncedVersion = doc.Version
	st.streak = 1
	queue := st.queue
	c.mu.Unlock()

	queue.DropThrough(doc.Version)
	c.log.Debug("full upload of %s@%d ok", doc.Path, doc.Version)
	return nil
}

// incrementalFlush sends pending deltas, falling back to a full upload when
// the baseline is unusable: no or trivial history, excessive drift, or
// inconsistent bookkeeping.
func (c *Coordinator) incrementalFlush(ctx context.Context, doc editor.Document, settings config.Settings) error {
	c.mu.Lock()
	st := c.stateLocked(doc.Path, settings.MaxQueuedUpdates)
	synced := st.synced
	syncedVersion := st.syncedVersion
	queue := st.queue
	c.mu.Unlock()

	pending := queue.Updates(syncedVersion)
	if len(pending) == 0 {
		return nil
	}

	highest := 0
	for _, r := range pending {
		if r.ModelVersion > highest {
			highest = r.ModelVersion
		}
	}

	if highest <= 1 || !synced || syncedVersion < highest-settings.MaxVersionDrift || syncedVersion > highest {
		c.log.Debug("incremental flush of %s degrading to full upload (synced=%d highest=%d)",
			doc.Path, syncedVersion, highest)
		return c.fullUpload(ctx, doc)
	}

	hash := ContentHash(doc.Content)
	err := c.uploader.SyncIncremental(ctx, doc.Path, highest, pending, hash)

	c.mu.Lock()
	st = c.stateLocked(doc.Path, settings.MaxQueuedUpdates)
	if err != nil {
		st.streak = 0
		if errors.Is(err, ErrContentMismatch) {
			st.synced = false
		}
		c.mu.Unlock()
		c.log.Warn("incremental sync of %s@%d failed: %v", doc.Path, highest, err)
		return fmt.Errorf("incremental sync of %s: %w", doc.Path, err)
	}
	st.syncedVersion = highest
	st.streak++
	c.mu.Unlock()

	queue.DropThrough(highest)
	c.log.Debug("incremental sync of %s@%d ok", doc.Path, highest)
	return nil
}

// flushInBackground is the debounced flush path.
func (c *Coordinator) flushInBackground(path string) {
	doc, ok := c.docSnapshot(path)
	if !ok {
		return
	}
	if err := c.PrepareDocument(context.Background(), doc); err != nil {
		c.log.Warn("debounced flush of %s failed: %v", path, err)
	}
}

// docSnapshot fetches the current document, tolerating a nil snapshot func.
func (c *Coordinator) docSnapshot(path string) (editor.Document, bool) {
	if c.snapshot == nil {
		return editor.Document{}, false
	}
	return c.snapshot(path)
}

// stateLocked returns the docState for path, creating it on first use.
func (c *Coordinator) stateLocked(path string, queueLimit int) *docState {
	st, ok := c.states[path]
	if !ok {
		st = &docState{queue: NewUpdateQueue(queueLimit)}
		c.states[path] = st
	}
	return st
}
