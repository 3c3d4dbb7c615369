// Package clock abstracts time for the completion engine.
//
// Debounce waits, sync retry delays, and cache expiry all run on an injected
// Clock so tests drive them with virtual time instead of real sleeps.
package clock

import (
	"context"
	"time"
)

// Timer represents a pending timer that can be stopped.
type Timer interface {
	Stop() bool
}

// Clock provides time-related operations.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for the duration to elapse and then calls f
	// in its own goroutine.
	AfterFunc(d time.Duration, f func()) Timer

	// Sleep blocks for the duration or until the context is done.
	// It returns the context error if the context ended first.
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the default Clock implementation using the standard library.
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
