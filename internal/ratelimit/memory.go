package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxKeys = 10000

type memoryBucket struct {
	lim      *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// MemoryLimiter is a per-process token bucket limiter. Each key refills at
// limit/window and may burst up to limit.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	maxKeys int
	buckets map[string]*memoryBucket
}

// MemoryConfig configures a MemoryLimiter.
type MemoryConfig struct {
	Now     func() time.Time
	MaxKeys int
}

// NewMemoryLimiter builds a limiter that keeps state in process memory.
func NewMemoryLimiter(cfg MemoryConfig) *MemoryLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = defaultMaxKeys
	}
	return &MemoryLimiter{now: cfg.Now, maxKeys: cfg.MaxKeys, buckets: make(map[string]*memoryBucket)}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	window = normalizeWindow(window)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if !ok || bucket.limit != limit || bucket.window != window {
		if len(m.buckets) >= m.maxKeys {
			m.gc(now)
		}
		if len(m.buckets) >= m.maxKeys {
			return Decision{}, errors.New("rate limiter capacity exceeded")
		}
		every := rate.Every(window / time.Duration(limit))
		bucket = &memoryBucket{lim: rate.NewLimiter(every, limit), limit: limit, window: window}
		m.buckets[key] = bucket
	}
	bucket.lastSeen = now

	allowed := bucket.lim.AllowN(now, 1)
	tokens := bucket.lim.TokensAt(now)
	perToken := float64(window) / float64(limit)
	resetAt, retryAt := now, now
	if missing := float64(limit) - tokens; missing > 0 {
		resetAt = now.Add(time.Duration(missing * perToken))
	}
	if tokens < 1 {
		retryAt = now.Add(time.Duration((1 - tokens) * perToken))
	}
	return decide(allowed, limit, int(math.Floor(tokens)), resetAt, retryAt, now), nil
}

func (m *MemoryLimiter) gc(now time.Time) {
	for key, bucket := range m.buckets {
		if now.Sub(bucket.lastSeen) > bucket.window {
			delete(m.buckets, key)
		}
	}
}
