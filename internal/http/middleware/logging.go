// Package middleware contains the Gin middleware shared by the HTTP layer:
// correlation IDs, access logging with PII redaction, panic recovery,
// Prometheus metrics, security headers, idempotency keys and the
// fixed-window rate limiter.
//
// Recommended order: RequestID, Logger or RedactingLogger, Recovery,
// Metrics, then IdempotencyValidator and RateLimit on the API group.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-subsidy-backend/internal/ratelimit"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxQueryLogLength caps the logged query string, in bytes.
	maxQueryLogLength = 2048
)

// RequestID reuses the caller's X-Request-ID or mints a UUIDv4, and echoes it
// on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger is the development access logger. It logs the raw query, remote IP,
// user agent and referer, so it must not run where bookings carry real
// contact details; production uses RedactingLogger.
func Logger() gin.HandlerFunc {
	return accessLog(nil)
}

// accessLog attaches a request-scoped logger and writes one "request" line
// when the chain returns. With a nil redactor nothing is scrubbed.
//
// Level by outcome: error for 5xx or recorded gin errors, debug for 429
// (rejections are expected traffic), warn for other 4xx, info otherwise.
func accessLog(rd *redactor) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := routeLabel(c)

		scoped := log.With().
			Str("request_id", requestID(c)).
			Str("method", c.Request.Method).
			Str("path", route).
			Logger()
		c.Set(loggerKey, &scoped)

		var query string
		var headers map[string]string
		if rd == nil {
			query = truncate(c.Request.URL.RawQuery, maxQueryLogLength)
		} else {
			query = truncate(rd.query(c.Request.URL.RawQuery), maxQueryLogLength)
			headers = rd.headers(c.Request.Header)
		}

		c.Next()

		status := c.Writer.Status()
		level := zerolog.InfoLevel
		switch {
		case len(c.Errors) > 0, status >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case status == http.StatusTooManyRequests:
			level = zerolog.DebugLevel
		case status >= http.StatusBadRequest:
			level = zerolog.WarnLevel
		}

		ev := scoped.WithLevel(level).
			Str("query", query).
			Str("client", ClientIDFromContext(c)).
			Str("route_class", RouteClass(c)).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start))

		if rem := c.Writer.Header().Get(ratelimit.HeaderRemaining); rem != "" {
			if n, err := strconv.ParseInt(rem, 10, 64); err == nil {
				ev = ev.Int64("rate_remaining", n)
			}
		}
		if IsReplay(c) {
			ev = ev.Bool("replayed", true)
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if rd == nil {
			ev = ev.Str("remote_ip", c.ClientIP()).
				Str("user_agent", c.Request.UserAgent()).
				Str("referer", c.Request.Referer())
		} else {
			ev = ev.Interface("headers", headers)
		}
		ev.Msg("request")
	}
}

// Recovery turns a panic into the standard 500 envelope and logs the stack.
// Register it after the access logger so the panic line carries the request
// ID and the 500 is logged.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := requestID(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or a copy of the global
// logger when no access logger ran.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// ClientIDFromContext returns the identity cached by ClientID, or "".
func ClientIDFromContext(c *gin.Context) string {
	s, _ := c.Value(ctxKeyIdentity).(string)
	return s
}

// requestID prefers the context value set by RequestID and falls back to the
// response header.
func requestID(c *gin.Context) string {
	if s, ok := c.Value(requestIDKey).(string); ok && s != "" {
		return s
	}
	return c.Writer.Header().Get(requestIDHeader)
}

// truncate cuts s to max bytes plus an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
