package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gymstack/facility-auth/internal/ids"
)

// RedisLimiter is a sliding-window log shared by every replica. Each admitted
// request is a sorted-set member scored by its arrival time in microseconds.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisLimiter builds a limiter over client. Keys are namespaced with prefix.
func NewRedisLimiter(client redis.Cmdable, prefix string, now func() time.Time) *RedisLimiter {
	if now == nil {
		now = time.Now
	}
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: now}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	window = normalizeWindow(window)
	now := r.now()
	bucket := r.prefix + key
	member := ids.NewAt(now)
	nowScore := now.UnixMicro()
	floor := strconv.FormatInt(nowScore-window.Microseconds(), 10)

	var (
		count  *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, bucket, "-inf", floor)
		pipe.ZAdd(ctx, bucket, redis.Z{Score: float64(nowScore), Member: member})
		count = pipe.ZCard(ctx, bucket)
		oldest = pipe.ZRangeWithScores(ctx, bucket, 0, 0)
		pipe.PExpire(ctx, bucket, window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit window %s: %w", bucket, err)
	}

	used := int(count.Val())
	allowed := used <= limit
	if !allowed {
		// Rejected requests do not occupy the window.
		if err := r.client.ZRem(ctx, bucket, member).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit release %s: %w", bucket, err)
		}
		used--
	}

	resetAt := now.Add(window)
	if first := oldest.Val(); len(first) > 0 {
		resetAt = time.UnixMicro(int64(first[0].Score)).Add(window)
	}
	return decide(allowed, limit, limit-used, resetAt, resetAt, now), nil
}
