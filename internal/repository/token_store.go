package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/domain"
)

const (
	familyKeyPrefix  = "auth:family:"
	revokedKeyPrefix = "auth:revoked:"
)

var advanceFamilyScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 3
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 2
end
if redis.call("HGET", KEYS[1], "latest") ~= ARGV[1] then
  return 1
end
redis.call("HSET", KEYS[1], "latest", ARGV[2])
return 0
`)

var revokeFamilyScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "revoked", "1")
  return 1
end
return 0
`)

// RedisFamilyStore keeps refresh-token families in Redis hashes that expire with
// the absolute session ceiling.
type RedisFamilyStore struct {
	client redis.Cmdable
}

// NewRedisFamilyStore builds a family store over client.
func NewRedisFamilyStore(client redis.Cmdable) *RedisFamilyStore {
	return &RedisFamilyStore{client: client}
}

func (s *RedisFamilyStore) Create(ctx context.Context, family domain.TokenFamily, ttl time.Duration) error {
	key := familyKeyPrefix + family.ID
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"sub", family.SubjectID,
			"latest", family.LatestJTI,
			"sst", strconv.FormatInt(family.SessionStart.Unix(), 10),
			"revoked", "0",
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	return err
}

func (s *RedisFamilyStore) Advance(ctx context.Context, familyID, presentedJTI, nextJTI string) (auth.AdvanceResult, error) {
	code, err := advanceFamilyScript.Run(ctx, s.client, []string{familyKeyPrefix + familyID}, presentedJTI, nextJTI).Int64()
	if err != nil {
		return auth.FamilyMissing, err
	}
	switch code {
	case 0:
		return auth.FamilyAdvanced, nil
	case 1:
		return auth.FamilyStale, nil
	case 2:
		return auth.FamilyRevoked, nil
	default:
		return auth.FamilyMissing, nil
	}
}

func (s *RedisFamilyStore) Revoke(ctx context.Context, familyID string) error {
	return revokeFamilyScript.Run(ctx, s.client, []string{familyKeyPrefix + familyID}).Err()
}

func (s *RedisFamilyStore) Get(ctx context.Context, familyID string) (*domain.TokenFamily, error) {
	values, err := s.client.HGetAll(ctx, familyKeyPrefix+familyID).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	sst, err := strconv.ParseInt(values["sst"], 10, 64)
	if err != nil {
		return nil, errors.New("corrupt token family session start")
	}
	return &domain.TokenFamily{
		ID:           familyID,
		SubjectID:    values["sub"],
		LatestJTI:    values["latest"],
		SessionStart: time.Unix(sst, 0).UTC(),
		Revoked:      values["revoked"] == "1",
	}, nil
}

// RedisRevocationList stores revoked access-token ids until they would have expired.
type RedisRevocationList struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisRevocationList builds a revocation list over client.
func NewRedisRevocationList(client redis.Cmdable, now func() time.Time) *RedisRevocationList {
	if now == nil {
		now = time.Now
	}
	return &RedisRevocationList{client: client, now: now}
}

func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var (
	_ auth.FamilyStore    = (*RedisFamilyStore)(nil)
	_ auth.RevocationList = (*RedisRevocationList)(nil)
)
