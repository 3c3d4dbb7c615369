package clock

import (
	"context"
	"sync"
	"time"
)

// Mock is a Clock whose time only moves when Advance is called.
// It is safe for concurrent use.
type Mock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

// waiter is a pending Sleep or AfterFunc deadline.
type waiter struct {
	deadline time.Time
	ch       chan struct{} // closed when the deadline is reached (Sleep)
	fn       func()        // called when the deadline is reached (AfterFunc)
	stopped  bool
}

// NewMock creates a Mock clock starting at a fixed, arbitrary instant.
func NewMock() *Mock {
	return &Mock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward, firing any timers and releasing any
// sleepers whose deadlines are reached.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	var due []*waiter
	remaining := m.waiters[:0]
	for _, w := range m.waiters {
		if w.stopped {
			continue
		}
		if !w.deadline.After(m.now) {
			due = append(due, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	m.waiters = remaining
	m.mu.Unlock()

	for _, w := range due {
		if w.ch != nil {
			close(w.ch)
		}
		if w.fn != nil {
			w.fn()
		}
	}
}

// AfterFunc registers f to run once the clock advances past d from now.
func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	w := &waiter{deadline: m.now.Add(d), fn: f}
	if d <= 0 {
		m.mu.Unlock()
		f()
		return (*mockTimer)(nil)
	}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()
	return &mockTimer{mock: m, w: w}
}

// Sleep blocks until the clock advances past d or the context is done.
func (m *Mock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	m.mu.Lock()
	w := &waiter{deadline: m.now.Add(d), ch: make(chan struct{})}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		w.stopped = true
		m.mu.Unlock()
		return ctx.Err()
	}
}

// Sleepers returns the number of goroutines currently blocked in Sleep.
// Pending AfterFunc timers are not counted; nothing blocks on those.
// Tests use this to synchronize before Advance.
func (m *Mock) Sleepers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.waiters {
		if w.ch != nil && !w.stopped {
			n++
		}
	}
	return n
}

// BlockUntil waits (in real time) until at least n sleepers are blocked.
func (m *Mock) BlockUntil(n int) {
	for {
		if m.Sleepers() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

type mockTimer struct {
	mock *Mock
	w    *waiter
}

// Stop cancels the timer. It reports whether the timer was still pending.
func (t *mockTimer) Stop() bool {
	if t == nil || t.w == nil {
		return false
	}
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	if t.w.stopped {
		return false
	}
	for _, w := range t.mock.waiters {
		if w == t.w {
			t.w.stopped = true
			return true
		}
	}
	return false
}
