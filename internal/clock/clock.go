// Package clock abstracts wall-clock time so pacing and latency code can be
// driven by tests.
package clock

import (
	"context"
	"time"
)

type Clock interface {
	Now() time.Time
	// SleepUntil blocks until t or until ctx is done, whichever is first.
	SleepUntil(ctx context.Context, t time.Time) error
}

type realClock struct{}

// Real returns the system clock.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) SleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
