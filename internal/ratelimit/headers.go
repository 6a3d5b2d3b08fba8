package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Headers renders r as response headers. Limit, Remaining and Reset (unix
// seconds of the window end) are always present; Retry-After only when the
// request was rejected.
func Headers(r Result, now time.Time) http.Header {
	h := make(http.Header, 4)
	h.Set(HeaderLimit, strconv.FormatInt(r.Limit, 10))
	h.Set(HeaderRemaining, strconv.FormatInt(r.Remaining, 10))
	h.Set(HeaderReset, strconv.FormatInt(r.ResetAt.Unix(), 10))
	if !r.Admitted {
		h.Set(HeaderRetryAfter, strconv.FormatInt(int64(r.RetryAfter(now)/time.Second), 10))
	}
	return h
}
