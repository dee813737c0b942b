package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually driven clock. SleepUntil jumps the clock forward instead
// of blocking and remembers every wake-up time it was asked for.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	step   time.Duration
	Sleeps []time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// SetStep makes every Now call advance the clock by d afterwards.
func (f *Fake) SetStep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.step = d
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now
	f.now = f.now.Add(f.step)
	return now
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *Fake) SleepUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sleeps = append(f.Sleeps, t)
	if t.After(f.now) {
		f.now = t
	}
	return nil
}
