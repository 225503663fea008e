package autoreply

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimKeyPrefix = "autoreply:claim:"

// RedisClaimStore keeps message claims in Redis with SET NX and a TTL
type RedisClaimStore struct {
	client *redis.Client
}

// NewRedisClaimStore creates a new RedisClaimStore
func NewRedisClaimStore(client *redis.Client) *RedisClaimStore {
	return &RedisClaimStore{client: client}
}

// Claim returns true when this caller is the first to claim messageID within ttl
func (s *RedisClaimStore) Claim(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, claimKeyPrefix+messageID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release drops a claim so a later delivery of the same message may try again
func (s *RedisClaimStore) Release(ctx context.Context, messageID string) error {
	return s.client.Del(ctx, claimKeyPrefix+messageID).Err()
}

// NoopClaimStore grants every claim. Used when Redis is not configured, leaving
// the ledger check as the only duplicate guard.
type NoopClaimStore struct{}

// Claim always succeeds
func (NoopClaimStore) Claim(context.Context, string, time.Duration) (bool, error) { return true, nil }

// Release does nothing
func (NoopClaimStore) Release(context.Context, string) error { return nil }
