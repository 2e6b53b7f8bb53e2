// Package retry provides a bounded, fixed-delay retry policy for the slow
// engine initialization path.
package retry

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultMaxAttempts is the number of initialization attempts made
	// before the failure is considered fatal.
	DefaultMaxAttempts = 3

	// DefaultDelay is the fixed wait between attempts. There is no backoff
	// growth; the dominant failure mode is a flaky network during a
	// first-run model download, where a short fixed pause is enough.
	DefaultDelay = 2 * time.Second
)

// Policy describes a bounded retry schedule. Attempts run strictly
// sequentially; the delay between attempts is fixed.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration

	// Sleep is swapped out in tests to avoid real time. Nil means
	// time.Sleep.
	Sleep func(time.Duration)
}

// DefaultPolicy returns the standard initialization policy.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

// Do invokes op until it succeeds or the attempt budget is exhausted. On
// exhaustion the last error is returned. The delay is not cancellable, but
// a cancelled context stops further attempts between tries.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 1 {
			slog.Warn("Retrying after failed attempt",
				"attempt", attempt,
				"max_attempts", attempts,
				"delay", p.Delay,
				"error", lastErr)
			sleep(p.Delay)
		}

		if err := op(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return lastErr
}
