package ratelimit

import (
	"context"
	"time"
)

// Store holds fixed-window counters.
//
// Increment must atomically add one hit to the counter of key for the window
// beginning at windowStart and return the post-increment count. A window that
// has not been seen yet, or that replaced an elapsed one, starts at zero.
// Implementations must be safe for concurrent use.
type Store interface {
	Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
}
