package ratelimit

import (
	"context"
	"time"

	"github.com/mazen160/go-random"
)

// Limiter paces outbound requests: every call to Wait after the first
// blocks until at least Base plus a random jitter in [0, Jitter) has
// elapsed since the previous call returned. This is politeness pacing on
// the happy path, independent of any retry backoff.
//
// A Limiter is not safe for concurrent use, one per session.
type Limiter struct {
	Base   time.Duration
	Jitter time.Duration

	last time.Time
}

func New(base, jitter time.Duration) *Limiter {
	return &Limiter{Base: base, Jitter: jitter}
}

func (l *Limiter) delay() time.Duration {
	d := l.Base
	if l.Jitter > 0 {
		n, err := random.IntRange(0, int(l.Jitter))
		if err == nil {
			d += time.Duration(n)
		}
	}
	return d
}

func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.Base <= 0 {
		return ctx.Err()
	}

	now := time.Now()
	if l.last.IsZero() {
		l.last = now
		return ctx.Err()
	}

	remaining := l.delay() - now.Sub(l.last)
	if remaining > 0 {
		timer := time.NewTimer(remaining)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.last = time.Now()
	return nil
}
