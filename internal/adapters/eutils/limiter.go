package eutils

import (
	"context"
	"sync"
	"time"
)

const (
	SpacingWithoutKey = 400 * time.Millisecond
	SpacingWithKey    = 120 * time.Millisecond
)

// processLimiter is used by clients built without an explicit limiter so that
// all of them share one send schedule.
var processLimiter = NewLimiter()

// Limiter hands out send slots at least the requested spacing apart, in the
// order callers ask for them.
type Limiter struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

type reservation struct {
	slot time.Time
	prev time.Time
	wait time.Duration
}

func NewLimiter() *Limiter {
	return &Limiter{now: time.Now}
}

// Acquire blocks until the caller's slot comes up. A caller that gives up
// while waiting hands its slot back when nobody has queued behind it.
func (l *Limiter) Acquire(ctx context.Context, spacing time.Duration) error {
	r := l.reserve(spacing)
	if r.wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(r.wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		l.release(r)
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) reserve(spacing time.Duration) reservation {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	slot := now
	if !l.last.IsZero() {
		if next := l.last.Add(spacing); next.After(now) {
			slot = next
		}
	}
	r := reservation{slot: slot, prev: l.last, wait: slot.Sub(now)}
	l.last = slot

	return r
}

func (l *Limiter) release(r reservation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.last.Equal(r.slot) {
		l.last = r.prev
	}
}
