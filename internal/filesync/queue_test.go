package filesync

import "testing"

func rec(version int) SyncRecord {
	return SyncRecord{ModelVersion: version, Path: "main.go"}
}

func TestUpdateQueue_Bounded(t *testing.T) {
	q := NewUpdateQueue(30)

	for v := 1; v <= 50; v++ {
		q.Push(rec(v))
	}

	if q.Len() != 30 {
		t.Fatalf("Len() = %d, want 30", q.Len())
	}
	// Always the most recent entries survive.
	got := q.Updates(0)
	if got[0].ModelVersion != 21 || got[len(got)-1].ModelVersion != 50 {
		t.Errorf("kept versions %d..%d, want 21..50",
			got[0].ModelVersion, got[len(got)-1].ModelVersion)
	}
}

func TestUpdateQueue_UpdatesFiltersBaseline(t *testing.T) {
	q := NewUpdateQueue(30)
	for v := 1; v <= 5; v++ {
		q.Push(rec(v))
	}

	got := q.Updates(3)
	if len(got) != 2 || got[0].ModelVersion != 4 || got[1].ModelVersion != 5 {
		t.Errorf("Updates(3) = %v", got)
	}
	if got := q.Updates(5); len(got) != 0 {
		t.Errorf("Updates(5) = %v, want empty", got)
	}
}

func TestUpdateQueue_DropThrough(t *testing.T) {
	q := NewUpdateQueue(30)
	for v := 1; v <= 5; v++ {
		q.Push(rec(v))
	}

	q.DropThrough(3)
	if q.Len() != 2 {
		t.Fatalf("Len() = %d after DropThrough(3), want 2", q.Len())
	}
	if q.Latest() != 5 {
		t.Errorf("Latest() = %d, want 5", q.Latest())
	}

	q.DropThrough(10)
	if q.Len() != 0 || q.Latest() != 0 {
		t.Error("DropThrough(10) should empty the queue")
	}
}

func TestUpdateQueue_DefaultLimit(t *testing.T) {
	q := NewUpdateQueue(0)
	for v := 1; v <= 100; v++ {
		q.Push(rec(v))
	}
	if q.Len() != DefaultQueueLimit {
		t.Errorf("Len() = %d, want %d", q.Len(), DefaultQueueLimit)
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("hello")
	b := ContentHash("hello")
	c := ContentHash("world")

	if a != b {
		t.Error("hash not deterministic")
	}
	if a == c {
		t.Error("different content produced equal hashes")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}
