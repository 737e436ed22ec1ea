// Package cache provides a Redis-backed read-through cache for funnel stats.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"corebridge/process-service/internal/process"
)

// StatsCache stores process.Stats as JSON with a TTL. Cache failures are
// logged and treated as misses.
type StatsCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewStatsCache returns a cache whose entries expire after ttl.
func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl, prefix: "process:"}
}

// Get returns the cached stats for key.
func (c *StatsCache) Get(ctx context.Context, key string) (*process.Stats, bool) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("stats cache get failed", "key", key, "err", err)
		return nil, false
	}
	var st process.Stats
	if err := json.Unmarshal(raw, &st); err != nil {
		slog.Warn("stats cache entry corrupt", "key", key, "err", err)
		return nil, false
	}
	return &st, true
}

// Set stores st under key.
func (c *StatsCache) Set(ctx context.Context, key string, st *process.Stats) {
	raw, err := json.Marshal(st)
	if err != nil {
		slog.Warn("stats cache marshal failed", "key", key, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		slog.Warn("stats cache set failed", "key", key, "err", err)
	}
}

// Invalidate drops keys.
func (c *StatsCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.rdb.Del(ctx, full...).Err(); err != nil {
		slog.Warn("stats cache invalidate failed", "keys", keys, "err", err)
	}
}

var _ process.StatsCache = (*StatsCache)(nil)
