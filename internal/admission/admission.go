// Package admission decides whether and when a triggered completion request
// is actually sent.
//
// Continuous keystrokes produce bursts of triggers. The controller hands out
// request ids, tracks the start time of every live request, tells a new
// request which earlier ones it supersedes, and answers the single
// wait-then-check debounce question: "did a newer trigger arrive while I was
// waiting?". It never returns an error; any inconsistent state resolves to
// "do not debounce".
package admission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/clock"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/logging"
)

// RequestEntry tracks one live request.
type RequestEntry struct {
	// ID is the opaque request id.
	ID string
	// Start is when the request was admitted.
	Start time.Time
}

// Admission is the result of admitting one trigger.
type Admission struct {
	// ID is the fresh request id.
	ID string
	// Start is the admission timestamp.
	Start time.Time
	// Ctx is cancelled when the request is hard-cancelled.
	Ctx context.Context
	// Cancel hard-cancels the request. Reserved for explicit user
	// cancellation; supersession never calls it.
	Cancel context.CancelFunc
	// IDsToCancel lists earlier requests still inside the freshness window
	// that this trigger supersedes.
	IDsToCancel []string
}

// Tunables are the runtime-adjustable debounce durations.
type Tunables struct {
	// ClientDebounce is the single wait before the newer-trigger check.
	ClientDebounce time.Duration
	// TotalDebounce is the freshness window for supersession.
	TotalDebounce time.Duration
	// MaxRequestAge is the garbage-collection horizon for entries.
	MaxRequestAge time.Duration
}

// DefaultTunables returns the shipped debounce durations.
func DefaultTunables() Tunables {
	return Tunables{
		ClientDebounce: 25 * time.Millisecond,
		TotalDebounce:  60 * time.Millisecond,
		MaxRequestAge:  10 * time.Second,
	}
}

// Controller is the admission controller. Safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	clk      clock.Clock
	log      *logging.Logger
	tunables Tunables
	entries  []RequestEntry
	newID    func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock. Tests inject a mock for virtual time.
func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) {
		ctrl.clk = c
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) Option {
	return func(ctrl *Controller) {
		ctrl.log = log.WithComponent("admission")
	}
}

// WithTunables sets the initial tunables.
func WithTunables(t Tunables) Option {
	return func(ctrl *Controller) {
		ctrl.tunables = t
	}
}

// New creates an admission controller.
func New(opts ...Option) *Controller {
	ctrl := &Controller{
		clk:      clock.System,
		log:      logging.Null,
		tunables: DefaultTunables(),
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

// SetTunables applies server-provided debounce durations at runtime.
// Zero or negative values keep the current setting.
func (c *Controller) SetTunables(t Tunables) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.ClientDebounce > 0 {
		c.tunables.ClientDebounce = t.ClientDebounce
	}
	if t.TotalDebounce > 0 {
		c.tunables.TotalDebounce = t.TotalDebounce
	}
	if t.MaxRequestAge > 0 {
		c.tunables.MaxRequestAge = t.MaxRequestAge
	}
}

// RunRequest admits a new request: it prunes stale entries, computes which
// still-fresh earlier requests the new one supersedes, and registers the new
// entry.
func (c *Controller) RunRequest(parent context.Context) Admission {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	c.pruneLocked(now)

	var idsToCancel []string
	for _, e := range c.entries {
		if e.Start.Add(c.tunables.TotalDebounce).After(now) {
			idsToCancel = append(idsToCancel, e.ID)
		}
	}

	entry := RequestEntry{ID: c.newID(), Start: now}
	c.entries = append(c.entries, entry)

	c.log.Debug("admitted request %s, superseding %d", entry.ID, len(idsToCancel))

	return Admission{
		ID:          entry.ID,
		Start:       entry.Start,
		Ctx:         ctx,
		Cancel:      cancel,
		IDsToCancel: idsToCancel,
	}
}

// ShouldDebounce waits out the client debounce once, then reports whether a
// newer request was admitted within that window after this one started. An
// unknown id, a cancelled context, or any other inconsistency resolves to
// false.
func (c *Controller) ShouldDebounce(ctx context.Context, id string) bool {
	c.mu.Lock()
	wait := c.tunables.ClientDebounce
	start, ok := c.startLocked(id)
	c.mu.Unlock()
	if !ok {
		return false
	}

	if err := c.clk.Sleep(ctx, wait); err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	window := start.Add(c.tunables.ClientDebounce)
	for _, e := range c.entries {
		if e.ID == id {
			continue
		}
		if e.Start.After(start) && !e.Start.After(window) {
			c.log.Debug("request %s debounced by %s", id, e.ID)
			return true
		}
	}
	return false
}

// Complete removes the entry for a finished, cancelled, or disposed request.
func (c *Controller) Complete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// Tracked returns the number of live entries. Intended for tests and
// introspection.
func (c *Controller) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// startLocked returns the start time recorded for the id.
func (c *Controller) startLocked(id string) (time.Time, bool) {
	for _, e := range c.entries {
		if e.ID == id {
			return e.Start, true
		}
	}
	return time.Time{}, false
}

// pruneLocked drops entries older than the GC horizon.
func (c *Controller) pruneLocked(now time.Time) {
	cutoff := now.Add(-c.tunables.MaxRequestAge)
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.Start.After(cutoff) {
			kept = append(kept, e)
		}
	}
	c.entries = kept
}
