package completion

import (
	"sync"
	"time"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/clock"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/config"
)

// CachedSuggestion is one entry of the superseded-suggestion ring.
type CachedSuggestion struct {
	Suggestion  Suggestion
	DocumentKey string
	// Version is the document version the suggestion was produced against.
	Version int
	// At is when the entry was cached.
	At time.Time
}

// SuggestionCache is a bounded ring of suggestions whose requests finished
// after being superseded. A hit consumes the entry.
type SuggestionCache struct {
	mu       sync.Mutex
	clk      clock.Clock
	settings func() config.Settings
	entries  []CachedSuggestion
}

// NewSuggestionCache creates an empty cache.
func NewSuggestionCache(clk clock.Clock, settings func() config.Settings) *SuggestionCache {
	return &SuggestionCache{clk: clk, settings: settings}
}

// Put stores a suggestion produced against the given document version,
// evicting the oldest entry past capacity.
func (c *SuggestionCache) Put(s Suggestion, docKey string, version int) {
	capacity := c.settings().CacheCapacity
	if capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, CachedSuggestion{
		Suggestion:  s,
		DocumentKey: docKey,
		Version:     version,
		At:          c.clk.Now(),
	})
	if len(c.entries) > capacity {
		c.entries = append(c.entries[:0], c.entries[len(c.entries)-capacity:]...)
	}
}

// Take returns the newest entry usable at the given document version, iff
// 0 <= version - cachedVersion <= window. The entry is consumed.
func (c *SuggestionCache) Take(docKey string, version int) (Suggestion, bool) {
	window := c.settings().CacheWindow

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if e.DocumentKey != docKey {
			continue
		}
		lag := version - e.Version
		if lag < 0 || lag > window {
			continue
		}
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
		return e.Suggestion, true
	}
	return Suggestion{}, false
}

// Len returns the number of cached entries.
func (c *SuggestionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DropDocument evicts all entries for the given document.
func (c *SuggestionCache) DropDocument(docKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.DocumentKey != docKey {
			kept = append(kept, e)
		}
	}
	c.entries = kept
}
