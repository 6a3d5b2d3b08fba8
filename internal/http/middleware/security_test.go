package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, req *http.Request) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	r.Any("/api/v1/*rest", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_BaselineOnly(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, httptest.NewRequest(http.MethodGet, "/api/v1/subsidies", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Errorf("%s = %q; want %q", k, got, v)
		}
	}
	for _, k := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security"} {
		if h.Get(k) != "" {
			t.Errorf("unexpected %s: %q", k, h.Get(k))
		}
	}
}

func TestSecurityHeaders_PolicyAndGlobalNoStore(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{EnablePolicy: true, NoStore: true},
		httptest.NewRequest(http.MethodGet, "/api/v1/subsidies", nil))

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers missing: %v", h)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tlsReq := httptest.NewRequest(http.MethodGet, "/api/v1/subsidies", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	proxied := httptest.NewRequest(http.MethodGet, "/api/v1/subsidies", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	plain := httptest.NewRequest(http.MethodGet, "/api/v1/subsidies", nil)

	tests := []struct {
		name string
		opt  SecurityOptions
		req  *http.Request
		want string
	}{
		{"tls default age", SecurityOptions{EnableHSTS: true}, tlsReq, "max-age=15552000; includeSubDomains; preload"},
		{"proxy custom age", SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour}, proxied, "max-age=3600; includeSubDomains; preload"},
		{"plain http", SecurityOptions{EnableHSTS: true}, plain, ""},
		{"disabled", SecurityOptions{}, tlsReq, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serveSecurity(t, tt.opt, tt.req).Get("Strict-Transport-Security"); got != tt.want {
				t.Fatalf("HSTS = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityHeaders_NoStorePaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(SecurityOptions{NoStorePaths: []string{"/api/v1/availability", "/api/v1/appointments"}}))
	r.POST("/api/v1/appointments", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/api/v1/availability", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/subsidies", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, tc := range []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/v1/appointments", "no-store"},
		{http.MethodGet, "/api/v1/availability", "no-store"},
		{http.MethodGet, "/api/v1/subsidies", ""},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if got := w.Header().Get("Cache-Control"); got != tc.want {
			t.Errorf("%s %s Cache-Control = %q; want %q", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestHasAnyPrefix_IgnoresEmpty(t *testing.T) {
	if hasAnyPrefix("/api/v1/subsidies", []string{""}) {
		t.Fatal("empty prefix must not match")
	}
	if !hasAnyPrefix("/api/v1/appointments", []string{"/x", "/api/v1/app"}) {
		t.Fatal("expected prefix match")
	}
}
