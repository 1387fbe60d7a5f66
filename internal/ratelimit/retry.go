package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain"
)

// Policy is the bounded retry policy for adapter and embedding calls.
// Only errors classified Transient are retried; Permanent errors
// short-circuit. Exhaustion maps to ErrSourceUnavailable so one flaky
// source degrades, never aborts, the orchestration.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the default 3-attempt policy.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Do runs fn under the policy. A context deadline expiry during fn counts as
// a Transient failure for classification purposes, but an already-cancelled
// context stops further attempts.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.backoff(base, attempt)); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, lastErr)
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.Transient(err)
		}
		if !domain.IsTransient(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, lastErr)
}

// backoff computes the exponential delay with full jitter for attempt n (1-based).
func (p Policy) backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	// Full jitter: uniform in [d/2, d].
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
