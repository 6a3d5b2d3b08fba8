package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-subsidy-backend/internal/ratelimit"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	return &buf
}

// logLines decodes every JSON line whose message is msg.
func logLines(t *testing.T, buf *bytes.Buffer, msg string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad log line %q: %v", sc.Text(), err)
		}
		if m["message"] == msg {
			out = append(out, m)
		}
	}
	return out
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) { c.String(http.StatusOK, requestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	gen := w.Header().Get(requestIDHeader)
	if len(gen) != 36 || w.Body.String() != gen {
		t.Fatalf("generated id = %q, body %q", gen, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set("x-request-id", "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" || w.Body.String() != "abc-123" {
		t.Fatalf("propagated id = %q, body %q", got, w.Body.String())
	}
}

func TestLogger_LevelByOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/subsidies", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/limited", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })
	r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/errs", func(c *gin.Context) {
		_ = c.Error(errBoom)
		c.Status(http.StatusOK)
	})

	for _, p := range []string{"/subsidies", "/missing", "/limited", "/broken", "/errs"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	lines := logLines(t, buf, "request")
	if len(lines) != 5 {
		t.Fatalf("got %d request lines", len(lines))
	}
	want := []struct{ path, level string }{
		{"/subsidies", "info"},
		{"/missing", "warn"},
		{"/limited", "debug"},
		{"/broken", "error"},
		{"/errs", "error"},
	}
	for i, w := range want {
		if lines[i]["path"] != w.path || lines[i]["level"] != w.level {
			t.Errorf("line %d = %v %v; want %s %s", i, lines[i]["path"], lines[i]["level"], w.path, w.level)
		}
	}
	if lines[4]["errors"] == nil {
		t.Errorf("expected gin errors on the last line: %v", lines[4])
	}
}

var errBoom = errString("boom")

type errString string

func (e errString) Error() string { return string(e) }

func TestLogger_RateLimitFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.POST("/appointments", func(c *gin.Context) {
		c.Set(ctxKeyIdentity, "ip:203.0.113.7")
		c.Set(ctxKeyRouteClass, "booking")
		c.Set(ctxKeyIdemReplay, true)
		c.Header(ratelimit.HeaderRemaining, "3")
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/appointments?debug=1", nil)
	req.Header.Set("User-Agent", "probe/1.0")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := logLines(t, buf, "request")
	if len(lines) != 1 {
		t.Fatalf("got %d lines", len(lines))
	}
	l := lines[0]
	if l["client"] != "ip:203.0.113.7" || l["route_class"] != "booking" {
		t.Fatalf("identity fields: %v", l)
	}
	if l["rate_remaining"] != float64(3) || l["replayed"] != true {
		t.Fatalf("rate fields: %v", l)
	}
	if l["query"] != "debug=1" || l["user_agent"] != "probe/1.0" {
		t.Fatalf("debug logger should log raw request details: %v", l)
	}
	if _, ok := l["headers"]; ok {
		t.Fatalf("debug logger must not dump headers: %v", l)
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("fallback without access logger", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID())
		r.GET("/x", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("custom")
			c.Status(http.StatusOK)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
		lines := logLines(t, buf, "custom")
		if len(lines) != 1 || lines[0]["request_id"] != nil {
			t.Fatalf("fallback lines: %v", lines)
		}
	})

	t.Run("request scoped under redacting logger", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID(), RedactingLogger(RedactOptions{}))
		r.GET("/x", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("custom")
			c.Status(http.StatusOK)
		})
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(requestIDHeader, "rid-1")
		r.ServeHTTP(httptest.NewRecorder(), req)
		lines := logLines(t, buf, "custom")
		if len(lines) != 1 || lines[0]["request_id"] != "rid-1" || lines[0]["path"] != "/x" {
			t.Fatalf("scoped lines: %v", lines)
		}
	})
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("panic before write returns envelope", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID(), Logger(), Recovery())
		r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		req.Header.Set(requestIDHeader, "rid-p")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["code"] != "internal_error" || body["request_id"] != "rid-p" {
			t.Fatalf("body = %v", body)
		}
		panics := logLines(t, buf, "panic recovered")
		if len(panics) != 1 || panics[0]["request_id"] != "rid-p" || panics[0]["stack"] == nil {
			t.Fatalf("panic log: %v", panics)
		}
		if req := logLines(t, buf, "request"); len(req) != 1 || req[0]["level"] != "error" {
			t.Fatalf("access log: %v", req)
		}
	})

	t.Run("panic after write keeps partial body", func(t *testing.T) {
		captureLogger(t)
		r := gin.New()
		r.Use(RequestID(), Recovery())
		r.GET("/late", func(c *gin.Context) {
			c.String(http.StatusOK, "partial")
			panic("late")
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
		if strings.Contains(w.Body.String(), "internal_error") {
			t.Fatalf("envelope written after body: %q", w.Body.String())
		}
	})
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q; want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
