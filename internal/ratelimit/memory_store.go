package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const defaultShards = 64

// window is the per-key counter kept by MemoryStore.
type window struct {
	start time.Time
	end   time.Time
	count int64
}

type memoryShard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryStore keeps windows in process memory. Keys are spread across
// independently locked shards so unrelated keys do not serialize on one mutex;
// the count for a given key is only ever read and written under its shard lock.
//
// State is per process: with several instances behind a load balancer each
// one enforces its own quota. Use RedisStore for a shared limit.
type MemoryStore struct {
	shards  []*memoryShard
	idleTTL time.Duration
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIdleTTL sets how long a closed window is retained before Cleanup drops it.
func WithIdleTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

// WithShards sets the shard count (values <= 0 keep the default).
func WithShards(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shards = newShards(n)
		}
	}
}

// NewMemoryStore creates an in-memory window store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		shards:  newShards(defaultShards),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func newShards(n int) []*memoryShard {
	out := make([]*memoryShard, n)
	for i := range out {
		out[i] = &memoryShard{windows: make(map[string]*window)}
	}
	return out
}

func (s *MemoryStore) shardFor(key string) *memoryShard {
	if len(s.shards) == 1 {
		return s.shards[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, windowStart time.Time, length time.Duration) (int64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	w := sh.windows[key]
	if w == nil {
		w = &window{start: windowStart, end: windowStart.Add(length)}
		sh.windows[key] = w
	} else if windowStart.After(w.start) {
		// previous window elapsed: roll over
		w.start = windowStart
		w.end = windowStart.Add(length)
		w.count = 0
	}
	w.count++
	return w.count, nil
}

// Len returns the number of tracked windows.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.windows)
		sh.mu.Unlock()
	}
	return n
}

// Cleanup drops windows that closed at least idleTTL ago.
func (s *MemoryStore) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, w := range sh.windows {
			if !w.end.After(cutoff) {
				delete(sh.windows, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
