// Package cache provides a get-or-compute cache with per-key single flight.
//
// For a given key at most one producer runs at a time; every caller that
// arrives while it runs waits on the same flight and receives the same
// result. Fresh entries are served without calling the producer. When a
// refresh fails, a previous positive value is served instead as long as it is
// younger than ttl plus the staleness ceiling. Producers signal a legitimately
// absent key with ErrNotFound, which is cached as a negative entry.
//
// Entries live in process memory, so these guarantees hold per instance.
package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned by producers for an absent key and by GetOrCompute
// when the key is negatively cached.
var ErrNotFound = errors.New("cache: not found")

// Producer computes the value for a key. It receives a context detached from
// the caller's cancellation and bounded by the fetch timeout.
type Producer[V any] func(ctx context.Context) (V, error)

// Options configures a Cache. Zero values pick the defaults noted per field.
type Options struct {
	// Name labels metrics and logs.
	Name string
	// Capacity bounds the number of entries (default 1024). It is split
	// evenly across shards and each shard evicts its own least recently used
	// entry, so eviction is approximate LRU and may start before the whole
	// cache holds Capacity entries.
	Capacity int
	// Shards spreads entries over independently locked LRUs (default 16).
	Shards int
	// NegativeTTL is how long ErrNotFound is remembered (0 disables).
	NegativeTTL time.Duration
	// StaleCeiling is how long past its TTL a value may be served when the
	// refresh fails (0 disables stale serving).
	StaleCeiling time.Duration
	// FetchTimeout bounds each producer run (default 5s).
	FetchTimeout time.Duration
	// Clock overrides time.Now (tests).
	Clock func() time.Time
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	name         string
	shards       []*lruShard[V]
	group        singleflight.Group
	negativeTTL  time.Duration
	staleCeiling time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
}

// New creates a cache.
func New[V any](opt Options) *Cache[V] {
	if opt.Name == "" {
		opt.Name = "default"
	}
	if opt.Capacity <= 0 {
		opt.Capacity = 1024
	}
	if opt.Shards <= 0 {
		opt.Shards = 16
	}
	if opt.Shards > opt.Capacity {
		opt.Shards = opt.Capacity
	}
	if opt.FetchTimeout <= 0 {
		opt.FetchTimeout = 5 * time.Second
	}
	if opt.Clock == nil {
		opt.Clock = time.Now
	}

	per := (opt.Capacity + opt.Shards - 1) / opt.Shards
	shards := make([]*lruShard[V], opt.Shards)
	for i := range shards {
		shards[i] = newLRUShard[V](per)
	}
	return &Cache[V]{
		name:         opt.Name,
		shards:       shards,
		negativeTTL:  opt.NegativeTTL,
		staleCeiling: opt.StaleCeiling,
		fetchTimeout: opt.FetchTimeout,
		now:          opt.Clock,
	}
}

func (c *Cache[V]) shardFor(key string) *lruShard[V] {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// GetOrCompute returns the cached value for key, or runs produce once for all
// concurrent callers and caches its result for ttl.
//
// If ctx is cancelled while waiting, GetOrCompute returns ctx.Err() but the
// producer keeps running and its result is still stored.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, produce Producer[V]) (V, error) {
	var zero V
	if e, ok := c.shardFor(key).get(key); ok && e.fresh(c.now()) {
		return c.answer(e, outcomeHit)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		return c.fill(ctx, key, ttl, produce)
	})

	select {
	case <-ctx.Done():
		requests.WithLabelValues(c.name, outcomeCanceled).Inc()
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			requests.WithLabelValues(c.name, outcomeError).Inc()
			return zero, res.Err
		}
		fr := res.Val.(flightResult[V])
		outcome := fr.outcome
		if res.Shared && outcome == outcomeMiss {
			outcome = outcomeShared
		}
		return c.answer(fr.entry, outcome)
	}
}

type flightResult[V any] struct {
	entry   entry[V]
	outcome string
}

func (c *Cache[V]) answer(e entry[V], outcome string) (V, error) {
	if e.notFound {
		if outcome == outcomeHit {
			outcome = outcomeNegativeHit
		}
		requests.WithLabelValues(c.name, outcome).Inc()
		var zero V
		return zero, ErrNotFound
	}
	requests.WithLabelValues(c.name, outcome).Inc()
	return e.value, nil
}

// fill runs inside the flight for key.
func (c *Cache[V]) fill(ctx context.Context, key string, ttl time.Duration, produce Producer[V]) (flightResult[V], error) {
	sh := c.shardFor(key)
	// a flight that completed between our lookup and this one may have stored
	if e, ok := sh.get(key); ok && e.fresh(c.now()) {
		return flightResult[V]{entry: e, outcome: outcomeHit}, nil
	}

	sh.beginFill(key)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	v, err := runProducer(pctx, produce)
	now := c.now()

	switch {
	case err == nil:
		e := entry[V]{key: key, value: v, storedAt: now, ttl: ttl}
		c.store(sh, e, true)
		return flightResult[V]{entry: e, outcome: outcomeMiss}, nil

	case errors.Is(err, ErrNotFound):
		e := entry[V]{key: key, notFound: true, storedAt: now, ttl: c.negativeTTL}
		c.store(sh, e, c.negativeTTL > 0)
		return flightResult[V]{entry: e, outcome: outcomeMiss}, nil

	default:
		c.store(sh, entry[V]{key: key}, false)
		if prev, ok := sh.get(key); ok && prev.servableStale(now, c.staleCeiling) {
			log.Warn().Err(err).
				Str("cache", c.name).
				Str("key", key).
				Dur("age", now.Sub(prev.storedAt)).
				Msg("refresh failed; serving stale value")
			return flightResult[V]{entry: prev, outcome: outcomeStale}, nil
		}
		return flightResult[V]{}, err
	}
}

// store closes the flight for e.key and keeps e unless keep is false, the
// ttl is not positive or the key was invalidated during the flight.
func (c *Cache[V]) store(sh *lruShard[V], e entry[V], keep bool) {
	if n := sh.finishFill(e.key, e, keep && e.ttl > 0); n > 0 {
		evictions.WithLabelValues(c.name).Add(float64(n))
	}
}

// runProducer converts a producer panic into an error so it reaches every
// waiter instead of crashing the flight goroutine.
func runProducer[V any](ctx context.Context, produce Producer[V]) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: producer panic: %v", r)
		}
	}()
	return produce(ctx)
}

// Invalidate drops key. A flight running for key at the time still answers
// its waiters, but its result is not stored. Other keys are unaffected.
func (c *Cache[V]) Invalidate(key string) {
	c.shardFor(key).invalidate(key)
}

// Len returns the number of stored entries, negative ones included.
func (c *Cache[V]) Len() int {
	n := 0
	for _, sh := range c.shards {
		n += sh.len()
	}
	return n
}
