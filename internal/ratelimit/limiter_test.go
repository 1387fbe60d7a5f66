package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vitae-cloud/profilex/internal/domain"
	"github.com/vitae-cloud/profilex/internal/domain/source"
)

func TestAcquire_WithinBurst(t *testing.T) {
	l := NewLimiter(map[source.Source]Quota{
		source.GitHub: {RequestsPerMinute: 60, Burst: 2},
	})

	for i := 0; i < 2; i++ {
		if err := l.Acquire(context.Background(), source.GitHub, "octocat"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
}

func TestAcquire_FailsFastWithoutDeadline(t *testing.T) {
	l := NewLimiter(map[source.Source]Quota{
		source.GitHub: {RequestsPerMinute: 1, Burst: 1},
	})

	if err := l.Acquire(context.Background(), source.GitHub, "octocat"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	err := l.Acquire(context.Background(), source.GitHub, "octocat")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestAcquire_WaitsUnderDeadline(t *testing.T) {
	l := NewLimiter(map[source.Source]Quota{
		source.GitHub: {RequestsPerMinute: 6000, Burst: 1},
	})

	if err := l.Acquire(context.Background(), source.GitHub, "octocat"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// 100 req/sec refills within the deadline.
	if err := l.Acquire(ctx, source.GitHub, "octocat"); err != nil {
		t.Errorf("expected wait to succeed, got %v", err)
	}
}

func TestAcquire_DeadlineExpiryIsRateLimited(t *testing.T) {
	l := NewLimiter(map[source.Source]Quota{
		source.GitHub: {RequestsPerMinute: 1, Burst: 1},
	})

	if err := l.Acquire(context.Background(), source.GitHub, "octocat"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, source.GitHub, "octocat")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestAcquire_BucketsIsolatedPerAccount(t *testing.T) {
	l := NewLimiter(map[source.Source]Quota{
		source.GitHub: {RequestsPerMinute: 1, Burst: 1},
	})

	if err := l.Acquire(context.Background(), source.GitHub, "alice"); err != nil {
		t.Fatalf("alice: %v", err)
	}
	// bob has his own bucket.
	if err := l.Acquire(context.Background(), source.GitHub, "bob"); err != nil {
		t.Errorf("bob should have a fresh bucket: %v", err)
	}
}

func TestAcquire_UnknownSourceGetsDefaultQuota(t *testing.T) {
	l := NewLimiter(nil)
	if err := l.Acquire(context.Background(), source.Website, "example.com"); err != nil {
		t.Errorf("expected default quota to admit, got %v", err)
	}
}
