package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestMock_NowAdvances(t *testing.T) {
	m := NewMock()
	start := m.Now()
	m.Advance(250 * time.Millisecond)
	if got := m.Now().Sub(start); got != 250*time.Millisecond {
		t.Errorf("Now advanced by %v, want 250ms", got)
	}
}

func TestMock_SleepReleasedByAdvance(t *testing.T) {
	m := NewMock()
	done := make(chan error, 1)

	go func() {
		done <- m.Sleep(context.Background(), 25*time.Millisecond)
	}()

	m.BlockUntil(1)
	m.Advance(25 * time.Millisecond)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Sleep returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestMock_SleepCancelled(t *testing.T) {
	m := NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- m.Sleep(ctx, time.Hour)
	}()

	m.BlockUntil(1)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Sleep returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after cancel")
	}
}

func TestMock_AfterFunc(t *testing.T) {
	m := NewMock()
	var fired atomic.Bool

	m.AfterFunc(100*time.Millisecond, func() { fired.Store(true) })

	m.Advance(50 * time.Millisecond)
	if fired.Load() {
		t.Fatal("timer fired early")
	}
	m.Advance(50 * time.Millisecond)
	if !fired.Load() {
		t.Fatal("timer did not fire at deadline")
	}
}

func TestMock_AfterFuncStop(t *testing.T) {
	m := NewMock()
	var fired atomic.Bool

	timer := m.AfterFunc(time.Minute, func() { fired.Store(true) })
	if !timer.Stop() {
		t.Fatal("Stop() = false for pending timer")
	}
	m.Advance(2 * time.Minute)
	if fired.Load() {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Error("Stop() = true for already stopped timer")
	}
}

func TestSystem_SleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := System.Sleep(ctx, time.Minute); err == nil {
		t.Fatal("expected context error from cancelled Sleep")
	}
}
