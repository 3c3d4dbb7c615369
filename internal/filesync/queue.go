// Package filesync keeps the remote copy of each edited document consistent
// with local edits.
//
// Every local edit is queued as a SyncRecord. A debounced coordinator
// flushes queues either as incremental delta batches or, when the remote
// baseline is missing or has drifted, as full snapshots. Completion requests
// consult the coordinator to decide whether they can rely on the server's
// copy or must carry full content inline.
package filesync

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
)

// SyncRecord is one queued edit event for a document.
type SyncRecord struct {
	// ModelVersion is the document version after the edit.
	ModelVersion int
	// Path identifies the document.
	Path string
	// Updates are the deltas the edit applied.
	Updates []editor.EditDelta
	// ExpectedLength is the document length after the edit, for server-side
	// consistency checking.
	ExpectedLength int
}

// DefaultQueueLimit bounds each per-document queue.
const DefaultQueueLimit = 30

// UpdateQueue is a bounded, append-only queue of SyncRecords for one
// document. When full, the oldest entry is dropped first.
type UpdateQueue struct {
	mu      sync.Mutex
	limit   int
	records []SyncRecord
}

// NewUpdateQueue creates a queue bounded to limit entries.
// A non-positive limit falls back to DefaultQueueLimit.
func NewUpdateQueue(limit int) *UpdateQueue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &UpdateQueue{limit: limit}
}

// Push appends a record, evicting the oldest entry if the queue is full.
func (q *UpdateQueue) Push(rec SyncRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) >= q.limit {
		drop := len(q.records) - q.limit + 1
		q.records = append(q.records[:0], q.records[drop:]...)
	}
	q.records = append(q.records, rec)
}

// Updates returns the records with version strictly greater than
// minVersionExclusive, in insertion order.
func (q *UpdateQueue) Updates(minVersionExclusive int) []SyncRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []SyncRecord
	for _, r := range q.records {
		if r.ModelVersion > minVersionExclusive {
			out = append(out, r)
		}
	}
	return out
}

// DropThrough removes acknowledged records with version <= version.
func (q *UpdateQueue) DropThrough(version int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.records[:0]
	for _, r := range q.records {
		if r.ModelVersion > version {
			kept = append(kept, r)
		}
	}
	q.records = kept
}

// Len returns the number of queued records.
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Latest returns the highest queued version, or 0 when empty.
func (q *UpdateQueue) Latest() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	latest := 0
	for _, r := range q.records {
		if r.ModelVersion > latest {
			latest = r.ModelVersion
		}
	}
	return latest
}

// ContentHash returns the hex SHA-256 of the document content, the hash
// format the sync endpoints expect.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
