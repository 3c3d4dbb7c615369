package completion

import (
	"fmt"
	"testing"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/clock"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/config"
)

func newTestCache() *SuggestionCache {
	settings := config.Default()
	return NewSuggestionCache(clock.NewMock(), func() config.Settings { return settings })
}

func TestCache_VersionWindow(t *testing.T) {
	c := newTestCache()
	c.Put(Suggestion{RequestID: "r1", Text: "x"}, "main.go", 10)

	// Not served for requests older than the cached version.
	if _, ok := c.Take("main.go", 9); ok {
		t.Error("cache hit below the cached version")
	}
	// Served anywhere in V..V+3; each Put is consumed by one Take.
	for _, v := range []int{10, 11, 12, 13} {
		c.Put(Suggestion{RequestID: "r1", Text: "x"}, "main.go", 10)
		if _, ok := c.Take("main.go", v); !ok {
			t.Errorf("no cache hit at version %d", v)
		}
	}
	c.Put(Suggestion{RequestID: "r1", Text: "x"}, "main.go", 10)
	if _, ok := c.Take("main.go", 14); ok {
		t.Error("cache hit past the version window")
	}
}

func TestCache_TakeConsumes(t *testing.T) {
	c := newTestCache()
	c.Put(Suggestion{RequestID: "r1"}, "main.go", 1)

	if _, ok := c.Take("main.go", 1); !ok {
		t.Fatal("expected a hit")
	}
	if _, ok := c.Take("main.go", 1); ok {
		t.Error("entry served twice")
	}
}

func TestCache_KeyIsolation(t *testing.T) {
	c := newTestCache()
	c.Put(Suggestion{RequestID: "r1"}, "a.go", 1)

	if _, ok := c.Take("b.go", 1); ok {
		t.Error("hit for a different document")
	}
}

func TestCache_CapacityEvictsOldest(t *testing.T) {
	c := newTestCache()
	for i := 0; i < 7; i++ {
		c.Put(Suggestion{RequestID: fmt.Sprintf("r%d", i)}, fmt.Sprintf("f%d.go", i), 1)
	}
	if c.Len() != 5 {
		t.Fatalf("Len = %d, want 5", c.Len())
	}
	// The two oldest are gone; the five newest remain.
	for i := 0; i < 2; i++ {
		if _, ok := c.Take(fmt.Sprintf("f%d.go", i), 1); ok {
			t.Errorf("entry %d should have been evicted", i)
		}
	}
	for i := 2; i < 7; i++ {
		if _, ok := c.Take(fmt.Sprintf("f%d.go", i), 1); !ok {
			t.Errorf("entry %d missing", i)
		}
	}
}

func TestCache_NewestWins(t *testing.T) {
	c := newTestCache()
	c.Put(Suggestion{RequestID: "old"}, "main.go", 1)
	c.Put(Suggestion{RequestID: "new"}, "main.go", 2)

	s, ok := c.Take("main.go", 3)
	if !ok || s.RequestID != "new" {
		t.Errorf("Take = %+v, want the newest entry", s)
	}
}

func TestCache_DropDocument(t *testing.T) {
	c := newTestCache()
	c.Put(Suggestion{RequestID: "r1"}, "a.go", 1)
	c.Put(Suggestion{RequestID: "r2"}, "b.go", 1)

	c.DropDocument("a.go")
	if _, ok := c.Take("a.go", 1); ok {
		t.Error("dropped entry still served")
	}
	if _, ok := c.Take("b.go", 1); !ok {
		t.Error("unrelated entry lost")
	}
}
