// Package ratelimit implements the fixed-window, route-class scoped limiter
// that guards every public read endpoint and the booking endpoint.
//
// A decision is keyed by (client identity, route class). Each key owns one
// counter per window; the window starts at now truncated to the window length
// and closes window later. A request is admitted iff the post-increment count
// is <= the class limit. The increment itself is delegated to a Store, which
// must make it atomic: a read-then-write counter here is a lost-update bug that
// silently raises the effective limit under concurrent load.
//
// The limiter never returns an error to its caller. When the Store fails, the
// configured failure policy decides (fail-open admits, fail-closed rejects) and
// the Result is flagged Degraded.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Key is the composite identity of a rate-limit window.
type Key struct {
	Identity   string
	RouteClass string
}

// String renders the key as stored ("<class>|<identity>").
func (k Key) String() string { return k.RouteClass + "|" + k.Identity }

// Result is the outcome of a single Check.
type Result struct {
	Admitted   bool
	RouteClass string
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	// Degraded is true when the store failed and the failure policy decided.
	Degraded bool
}

// RetryAfter returns how long a rejected caller should wait, rounded up to a
// whole second and never below one.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

// DefaultClass is used for any route class without its own quota.
const DefaultClass = "default"

// ErrNoDefaultClass is returned by New when the class table lacks DefaultClass.
var ErrNoDefaultClass = errors.New("ratelimit: limit for the default route class is required")

// Option configures a Limiter.
type Option func(*Limiter)

// WithFailOpen selects the policy applied when the store is unavailable.
func WithFailOpen(open bool) Option {
	return func(l *Limiter) { l.failOpen = open }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter decides admissions against a Store. Safe for concurrent use; it
// holds no mutable state of its own.
type Limiter struct {
	store    Store
	window   time.Duration
	classes  map[string]int64
	failOpen bool
	now      func() time.Time
}

// New builds a Limiter. classes maps route class -> requests per window and
// must contain DefaultClass.
func New(store Store, window time.Duration, classes map[string]int64, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be > 0")
	}
	if _, ok := classes[DefaultClass]; !ok {
		return nil, ErrNoDefaultClass
	}
	cp := make(map[string]int64, len(classes))
	for name, limit := range classes {
		if limit < 1 {
			return nil, errors.New("ratelimit: limit for route class " + name + " must be >= 1")
		}
		cp[name] = limit
	}
	l := &Limiter{
		store:    store,
		window:   window,
		classes:  cp,
		failOpen: true,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Now returns the limiter's notion of the current time.
func (l *Limiter) Now() time.Time { return l.now() }

// Check counts one request for (identity, routeClass) and reports whether it
// is admitted. Unknown route classes fall back to DefaultClass.
func (l *Limiter) Check(ctx context.Context, identity, routeClass string) Result {
	if identity == "" {
		identity = "unknown"
	}
	limit, ok := l.classes[routeClass]
	if !ok {
		routeClass = DefaultClass
		limit = l.classes[DefaultClass]
	}

	now := l.now()
	windowStart := now.Truncate(l.window)
	res := Result{
		RouteClass: routeClass,
		Limit:      limit,
		ResetAt:    windowStart.Add(l.window),
	}
	key := Key{Identity: identity, RouteClass: routeClass}

	count, err := l.store.Increment(ctx, key.String(), windowStart, l.window)
	if err != nil {
		res.Degraded = true
		res.Admitted = l.failOpen
		if l.failOpen {
			res.Remaining = limit
		}
		log.Warn().Err(err).
			Str("route_class", routeClass).
			Bool("fail_open", l.failOpen).
			Msg("rate limit store unavailable")
		observeDecision(routeClass, outcomeStoreError)
		return res
	}

	res.Admitted = count <= limit
	res.Remaining = limit - count
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if res.Admitted {
		observeDecision(routeClass, outcomeAdmitted)
	} else {
		observeDecision(routeClass, outcomeRejected)
	}
	return res
}
