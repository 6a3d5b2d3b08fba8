// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts the fixed-window ratelimit.Limiter to Gin. For each
// request it resolves the route class from method and route, derives the
// client identity, asks the limiter for a decision and always writes the
// X-RateLimit-* headers. Rejected requests get a 429 envelope and a
// Retry-After header.
//
// Features:
//   - Route-class quotas (public-read, booking, default) via ratelimit.Classifier
//   - Proxy headers honoured only when the deployment trusts them
//   - Seamless bypass for idempotent replays (when paired with IdempotencyValidator)
//
// The limiter is intended for edge-level abuse control and cost protection;
// it is not an authorization mechanism.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-subsidy-backend/internal/ratelimit"
)

const (
	ctxKeyIdentity   = "rl.identity"
	ctxKeyRouteClass = "rl.class"
)

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	// Classifier maps (method, route) to a route class. Nil sends every
	// request to ratelimit.DefaultClass.
	Classifier *ratelimit.Classifier
	// Identity controls how the client identity is derived.
	Identity ratelimit.IdentityOptions
}

// ClientID returns the rate-limit identity of the request, computing it once
// and caching it in the Gin context.
func ClientID(c *gin.Context, opt ratelimit.IdentityOptions) string {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	id := ratelimit.ClientIdentity(c.Request, opt)
	c.Set(ctxKeyIdentity, id)
	return id
}

// RouteClass returns the route class resolved by RateLimit, or "".
func RouteClass(c *gin.Context) string {
	v, _ := c.Get(ctxKeyRouteClass)
	s, _ := v.(string)
	return s
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it is a replay of a previously completed request).
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// RateLimit returns a Gin middleware enforcing l.
//
// Behavior:
//   - If IsRateBypass(c) is true (idempotent replay), limiting is skipped.
//   - Otherwise the request is checked against its (identity, route class)
//     window. Headers are written either way; a rejection aborts with:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 12
//	{
//	  "request_id": "<uuid>",
//	  "code":       "too_many_requests",
//	  "message":    "rate limit exceeded"
//	}
func RateLimit(l *ratelimit.Limiter, opt RateLimitOptions) gin.HandlerFunc {
	cls := opt.Classifier
	if cls == nil {
		cls = ratelimit.NewClassifier()
	}
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		class := cls.Classify(c.Request.Method, route)
		c.Set(ctxKeyRouteClass, class)
		id := ClientID(c, opt.Identity)

		res := l.Check(c.Request.Context(), id, class)
		h := c.Writer.Header()
		for k, v := range ratelimit.Headers(res, l.Now()) {
			h[k] = v
		}

		if res.Admitted {
			c.Next()
			return
		}

		LoggerFrom(c).Debug().
			Str("identity", id).
			Str("route_class", class).
			Int64("limit", res.Limit).
			Time("reset_at", res.ResetAt).
			Msg("rate limited")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": h.Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
