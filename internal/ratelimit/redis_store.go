package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed fixed_window.lua
var fixedWindowLua string

var fixedWindowScript = redis.NewScript(fixedWindowLua)

// RedisStore keeps windows in Redis so every instance shares one quota.
// The increment and the first-hit expiry run in a single Lua script, which
// Redis executes atomically.
type RedisStore struct {
	client    redis.Scripter
	prefix    string
	opTimeout time.Duration
	grace     time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default "rl:").
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisStore) { s.prefix = p }
}

// WithOpTimeout bounds each Redis round-trip; zero disables the bound.
func WithOpTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.opTimeout = d }
}

// NewRedisStore wraps a go-redis client (single node, cluster or ring).
func NewRedisStore(client redis.Scripter, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		prefix:    "rl:",
		opTimeout: 250 * time.Millisecond,
		grace:     time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// WindowKey is the Redis key for key's window starting at windowStart.
func (s *RedisStore) WindowKey(key string, windowStart time.Time) string {
	return fmt.Sprintf("%s%s:%d", s.prefix, key, windowStart.UnixMilli())
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	if s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}
	ttl := (window + s.grace).Milliseconds()
	n, err := fixedWindowScript.Run(ctx, s.client, []string{s.WindowKey(key, windowStart)}, ttl).Int64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis increment: %w", err)
	}
	return n, nil
}
