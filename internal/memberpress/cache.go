package memberpress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// MembershipCache keeps membership definitions between events. Misses and
// cache errors are never fatal; the client falls back to the API.
type MembershipCache interface {
	Get(ctx context.Context, id int64) (Membership, bool)
	Set(ctx context.Context, m Membership)
}

// RedisCache stores memberships as JSON values with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache parses a redis:// URL and pings the server once.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, prefix: "membership-sync:membership:", ttl: ttl}, nil
}

func (c *RedisCache) key(id int64) string {
	return c.prefix + strconv.FormatInt(id, 10)
}

func (c *RedisCache) Get(ctx context.Context, id int64) (Membership, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("membership cache read failed", "membership_id", id, "error", err)
		}
		return Membership{}, false
	}
	var m Membership
	if err := json.Unmarshal(raw, &m); err != nil {
		return Membership{}, false
	}
	return m, true
}

func (c *RedisCache) Set(ctx context.Context, m Membership) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(int64(m.ID)), b, c.ttl).Err(); err != nil {
		slog.Warn("membership cache write failed", "membership_id", int64(m.ID), "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
