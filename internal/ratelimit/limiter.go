// Package ratelimit enforces per-credential request quotas.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call. RetryAfter is set only when the
// request was rejected and is measured on the limiter's own clock.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for key under limit requests per window.
// A limit <= 0 means unlimited.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// APIKeyBucket names the quota bucket of an API key.
func APIKeyBucket(keyID string) string {
	return "apikey:" + keyID
}

func unlimited(limit int) Decision {
	return Decision{Allowed: true, Limit: limit, Remaining: limit}
}

func normalizeWindow(window time.Duration) time.Duration {
	if window <= 0 {
		return time.Second
	}
	return window
}

// decide assembles a Decision, clamping remaining and deriving RetryAfter from
// retryAt when the request is rejected.
func decide(allowed bool, limit, remaining int, resetAt, retryAt, now time.Time) Decision {
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: allowed, Limit: limit, Remaining: remaining, ResetAt: resetAt}
	if !allowed {
		d.RetryAfter = retryAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d
}
