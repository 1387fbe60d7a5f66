// Package ratelimit provides per-source token-bucket limiting and the
// bounded retry policy used around adapter calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

// Quota holds one source's published rate quota.
type Quota struct {
	RequestsPerMinute float64
	Burst             int
}

// Limiter keeps one token bucket per (source, account) pair. Buckets refill
// at the source's published quota.
type Limiter struct {
	mu      sync.Mutex
	quotas  map[source.Source]Quota
	buckets map[string]*rate.Limiter
}

// NewLimiter creates a limiter from per-source quotas.
func NewLimiter(quotas map[source.Source]Quota) *Limiter {
	return &Limiter{
		quotas:  quotas,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Acquire takes one token for (src, account). If the bucket is empty and the
// caller's context carries a deadline, Acquire blocks until a token is
// available or the deadline expires; without a deadline it fails fast.
// Either failure surfaces as ErrRateLimited.
func (l *Limiter) Acquire(ctx context.Context, src source.Source, account string) error {
	bucket := l.bucket(src, account)

	if bucket.Allow() {
		return nil
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return fmt.Errorf("%w: %s quota exhausted", domain.ErrRateLimited, src)
	}

	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrRateLimited, src, err)
	}
	return nil
}

func (l *Limiter) bucket(src source.Source, account string) *rate.Limiter {
	key := string(src) + "/" + account

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	q, ok := l.quotas[src]
	if !ok {
		q = Quota{RequestsPerMinute: 10, Burst: 1}
	}
	b := rate.NewLimiter(rate.Limit(q.RequestsPerMinute/60.0), max(q.Burst, 1))
	l.buckets[key] = b
	return b
}
