// Package retrier wraps retry-go with the error taxonomy used by the
// portal session: an operation either succeeds, fails transiently (worth
// backing off and retrying) or fails fatally (retrying cannot help, the
// caller must absorb the failure for that unit of work).
//
// Errors are fatal unless explicitly marked, so a schema-drift or
// programming error is never retried by accident.
package retrier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/avast/retry-go/v4"
)

type kind int

const (
	kindTransient kind = iota
	// a transient failure caused by throttling, backs off longer
	kindRateLimited
	// a transient failure attributable to stale session state,
	// triggers the reset hook before the next attempt
	kindStale
)

type markedError struct {
	kind kind
	err  error
}

func (e *markedError) Error() string { return e.err.Error() }
func (e *markedError) Unwrap() error { return e.err }

func Transient(err error) error {
	return &markedError{kind: kindTransient, err: err}
}

func RateLimited(err error) error {
	return &markedError{kind: kindRateLimited, err: err}
}

func Stale(err error) error {
	return &markedError{kind: kindStale, err: err}
}

func IsTransient(err error) bool {
	var marked *markedError
	return errors.As(err, &marked)
}

func IsRateLimited(err error) bool {
	var marked *markedError
	return errors.As(err, &marked) && marked.kind == kindRateLimited
}

func IsStale(err error) bool {
	var marked *markedError
	return errors.As(err, &marked) && marked.kind == kindStale
}

const rateLimitedDelayFactor = 4

type Policy struct {
	// total attempts, not retries, so Attempts=1 means no retry
	Attempts  uint
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MaxJitter time.Duration
	// consecutive failures after which the reset hook runs even for
	// plain transient errors, a desynced session being the most likely
	// cause of repeated failure
	ResetAfter uint
}

func (p Policy) resetAfter() uint {
	if p.ResetAfter == 0 {
		return 3
	}
	return p.ResetAfter
}

func (p Policy) delay(n uint, err error) time.Duration {
	d := p.BaseDelay << n
	if IsRateLimited(err) {
		d *= rateLimitedDelayFactor
	}
	if p.MaxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, fails fatally, or exhausts the attempt
// budget. Only errors marked transient are retried. reset, if non-nil,
// runs before the next attempt once a stale-state failure is seen or
// ResetAfter consecutive failures have accumulated; its own failure is
// logged but never aborts the retry loop.
func (p Policy) Do(
	ctx context.Context,
	name string,
	op func(ctx context.Context) error,
	reset func(ctx context.Context) error,
) error {
	err := retry.Do(
		func() error { return op(ctx) },
		retry.Context(ctx),
		retry.Attempts(p.Attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsTransient),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			return p.delay(n, err)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.WarnContext(
				ctx, "attempt failed",
				"op", name,
				"attempt", n+1,
				"max_attempts", p.Attempts,
				"err", err,
			)
			if reset == nil {
				return
			}
			if !IsStale(err) && n+1 < p.resetAfter() {
				return
			}
			slog.InfoContext(ctx, "resetting session before retry", "op", name)
			if rerr := reset(ctx); rerr != nil {
				slog.ErrorContext(ctx, "session reset failed", "op", name, "err", rerr)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
