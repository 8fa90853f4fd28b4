package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClaimRepo implements the core.ClaimStore interface using Redis.
// Claims back webhook delivery dedup and report dedup; both tolerate claim
// loss (a lost claim means at worst one duplicate, which the pipeline already
// permits under at-least-once delivery).
type RedisClaimRepo struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClaimRepo creates a new RedisClaimRepo with the given Redis client.
// All keys are namespaced under the given prefix.
func NewRedisClaimRepo(client redis.UniversalClient, prefix string) *RedisClaimRepo {
	if prefix == "" {
		prefix = "relay:claim"
	}
	return &RedisClaimRepo{client: client, prefix: prefix}
}

func (r *RedisClaimRepo) key(k string) string {
	return r.prefix + ":" + k
}

// Claim atomically claims the key for ttl. Returns false when the key is
// already held.
//
// SETNX with a separate EXPIRE is not atomic; SET with NX + TTL is, so a
// crash between the two can never leave an unexpiring claim.
func (r *RedisClaimRepo) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	actualTTL := ttl
	if ttl <= 0 {
		actualTTL = time.Second
	}

	cmd := r.client.SetArgs(ctx, r.key(key), "1", redis.SetArgs{Mode: "NX", TTL: actualTTL})
	status, err := cmd.Result()
	if err != nil {
		// When the NX condition is not met Redis returns a nil reply, which
		// go-redis surfaces as redis.Nil; that means "already claimed".
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis SET NX: %w", err)
	}

	return status == "OK", nil
}

// ReleaseClaim drops a claim early so the origin may retry before the TTL lapses.
func (r *RedisClaimRepo) ReleaseClaim(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Health checks the health of the Redis connection.
func (r *RedisClaimRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
