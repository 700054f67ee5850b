package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterExhaustsAndRefills(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryConfig{Now: func() time.Time { return now }})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "key-1", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	d, err := limiter.Allow(ctx, "key-1", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.Remaining != 0 {
		t.Fatalf("fourth request should be rejected, got %+v", d)
	}
	if !d.ResetAt.After(now) {
		t.Fatalf("reset must be in the future, got %s", d.ResetAt)
	}
	if d.RetryAfter != 20*time.Second {
		t.Fatalf("expected retry after one refill interval, got %s", d.RetryAfter)
	}

	other, _ := limiter.Allow(ctx, "key-2", 3, time.Minute)
	if !other.Allowed {
		t.Fatalf("keys must not share buckets")
	}

	now = now.Add(21 * time.Second)
	d, _ = limiter.Allow(ctx, "key-1", 3, time.Minute)
	if !d.Allowed {
		t.Fatalf("one token should have refilled after a third of the window")
	}
}

func TestMemoryLimiterUnlimited(t *testing.T) {
	limiter := NewMemoryLimiter(MemoryConfig{})
	for i := 0; i < 100; i++ {
		d, err := limiter.Allow(context.Background(), "k", 0, time.Second)
		if err != nil || !d.Allowed {
			t.Fatalf("limit 0 must never reject: %+v %v", d, err)
		}
	}
}

func TestMemoryLimiterCapacity(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryConfig{Now: func() time.Time { return now }, MaxKeys: 1})
	ctx := context.Background()
	if _, err := limiter.Allow(ctx, "a", 1, time.Second); err != nil {
		t.Fatalf("first key: %v", err)
	}
	if _, err := limiter.Allow(ctx, "b", 1, time.Second); err == nil {
		t.Fatalf("expected capacity error")
	}
	now = now.Add(2 * time.Second)
	if _, err := limiter.Allow(ctx, "b", 1, time.Second); err != nil {
		t.Fatalf("stale key should have been collected: %v", err)
	}
}

func TestMemoryLimiterRetryAfterOnlyWhenRejected(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(MemoryConfig{Now: func() time.Time { return now }})
	d, err := limiter.Allow(context.Background(), "k", 5, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !d.Allowed || d.RetryAfter != 0 || d.Remaining != 4 {
		t.Fatalf("unexpected decision for admitted request: %+v", d)
	}
}

func TestAPIKeyBucketIsNamespaced(t *testing.T) {
	if got := APIKeyBucket("k-1"); got != "apikey:k-1" {
		t.Fatalf("unexpected bucket %q", got)
	}
}
