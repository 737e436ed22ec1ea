package idgen

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultSequenceKey is the Redis key incremented by RedisSequence.
const DefaultSequenceKey = "process:id:seq"

// RedisSequence hands out ids from a shared Redis counter, so several
// replicas draw from one increasing sequence.
type RedisSequence struct {
	rdb *redis.Client
	key string
}

// NewRedisSequence returns a sequence on key, or DefaultSequenceKey when key
// is empty.
func NewRedisSequence(rdb *redis.Client, key string) *RedisSequence {
	if key == "" {
		key = DefaultSequenceKey
	}
	return &RedisSequence{rdb: rdb, key: key}
}

// NextID increments the counter and returns the new value.
func (r *RedisSequence) NextID(ctx context.Context) (int64, error) {
	id, err := r.rdb.Incr(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis INCR %s: %w", r.key, err)
	}
	return id, nil
}
