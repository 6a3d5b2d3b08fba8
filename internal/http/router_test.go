package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-subsidy-backend/internal/calendar"
	"github.com/tbourn/go-subsidy-backend/internal/config"
	"github.com/tbourn/go-subsidy-backend/internal/domain"
	"github.com/tbourn/go-subsidy-backend/internal/http/middleware"
	"github.com/tbourn/go-subsidy-backend/internal/ratelimit"
	"github.com/tbourn/go-subsidy-backend/internal/repo"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
)

var routerNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) // Monday

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateLimit: config.RateLimitConfig{
			Window: time.Minute,
			Classes: []config.RouteClassLimit{
				{Name: config.RouteClassDefault, Limit: 100},
				{Name: config.RouteClassPublicRead, Limit: 2},
				{Name: config.RouteClassBooking, Limit: 1},
			},
			FailOpen: true,
		},
		Cache: config.CacheConfig{
			Capacity:     100,
			SubsidyTTL:   time.Minute,
			ListTTL:      time.Minute,
			CatalogTTL:   time.Minute,
			NegativeTTL:  time.Second,
			StaleCeiling: time.Minute,
			FetchTimeout: time.Second,
		},
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
	}
}

func testDeps(t *testing.T, db *gorm.DB, cfg config.Config) Deps {
	t.Helper()
	l, err := NewLimiter(cfg.RateLimit, ratelimit.NewMemoryStore())
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	p := scheduler.Policy{
		Weekdays:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		DayStart:      9 * time.Hour,
		DayEnd:        17 * time.Hour,
		SlotDuration:  time.Hour,
		HorizonMonths: 3,
		Location:      time.UTC,
	}
	s, err := scheduler.New(p, calendar.Merge(calendar.NewStoreSource(db)),
		scheduler.WithClock(func() time.Time { return routerNow }))
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	return Deps{Limiter: l, Scheduler: s}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	r := gin.New()
	if err := RegisterRoutes(r, db, testDeps(t, db, cfg), cfg); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return r, db
}

func serve(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_RequiresDeps(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if err := RegisterRoutes(gin.New(), nil, Deps{}, testConfig()); err == nil {
		t.Fatal("expected error for missing limiter and scheduler")
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	// /health works and is never rate limited
	for i := 0; i < 5; i++ {
		w := serve(r, http.MethodGet, "/health", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET /health #%d = %d", i, w.Code)
		}
		if w.Header().Get(ratelimit.HeaderLimit) != "" {
			t.Fatal("/health must not carry rate-limit headers")
		}
		// CORS (AllowAllOrigins) → header "*"
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("AllowAllOrigins expected '*', got %q", got)
		}
	}

	// /metrics is wired
	w := serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	if w := serve(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	if w := serve(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Swagger disabled by default
	if w := serve(r, http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_DebugModeLogger(t *testing.T) {
	cfg := testConfig()
	cfg.GinMode = gin.DebugMode
	r, _ := newTestRouter(t, cfg)
	if w := serve(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
}

func TestRegisterRoutes_SwaggerEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r, _ := newTestRouter(t, cfg)

	w := serve(r, http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"/subsidies"`)) {
		t.Fatalf("swagger doc: %d", w.Code)
	}
}

func TestRegisterRoutes_PublicReadQuota(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	s := &domain.Subsidy{Title: "IT導入補助金", Region: "tokyo", Category: "it", Published: true}
	if err := repo.CreateSubsidy(context.Background(), db, s); err != nil {
		t.Fatal(err)
	}

	w := serve(r, http.MethodGet, "/api/v1/subsidies", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(ratelimit.HeaderLimit) != "2" || w.Header().Get(ratelimit.HeaderRemaining) != "1" {
		t.Fatalf("headers: %v", w.Header())
	}
	if w.Header().Get("Cache-Control") == "no-store" {
		t.Fatal("catalog reads should stay cacheable")
	}

	// Same class, different route: shares the quota.
	if w := serve(r, http.MethodGet, "/api/v1/subsidies/"+s.ID, "", nil); w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	w = serve(r, http.MethodGet, "/api/v1/availability?date=2026-03-02", "", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third public read: want 429, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["code"] != "too_many_requests" || w.Header().Get(ratelimit.HeaderRetryAfter) == "" {
		t.Fatalf("429 envelope: %v headers=%v", body, w.Header())
	}

	// Operational endpoints stay reachable.
	if w := serve(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("/health after exhaustion: %d", w.Code)
	}
}

func TestRegisterRoutes_BookingFlowWithReplay(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/api/v1/availability?date=2026-03-02", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("availability: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("availability must be no-store, got %q", w.Header().Get("Cache-Control"))
	}
	var a scheduler.Availability
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil || len(a.Slots) != 8 {
		t.Fatalf("slots=%d err=%v", len(a.Slots), err)
	}

	body := `{"start":"2026-03-02T10:00:00Z","company_name":"Example K.K.","contact_name":"Taro Yamada","email":"taro@example.com"}`
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "book-1"}

	w = serve(r, http.MethodPost, "/api/v1/appointments", body, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", w.Code, w.Body.String())
	}
	var first domain.Appointment
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil || first.ID == "" {
		t.Fatalf("appointment: %s", w.Body.String())
	}

	// Booking quota (1) is spent; the replay bypasses it.
	w = serve(r, http.MethodPost, "/api/v1/appointments", body, hdr)
	if w.Code != http.StatusOK || w.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d %v", w.Code, w.Header())
	}
	var replay domain.Appointment
	if err := json.Unmarshal(w.Body.Bytes(), &replay); err != nil || replay.ID != first.ID {
		t.Fatalf("replay returned %s", w.Body.String())
	}

	// A new key is a new booking attempt and is limited.
	w = serve(r, http.MethodPost, "/api/v1/appointments", body, map[string]string{middleware.HeaderIdempotencyKey: "book-2"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("new key: want 429, got %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotencyKeyScopedPerClient(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Classes[2].Limit = 10
	r, _ := newTestRouter(t, cfg)

	body := `{"start":"2026-03-02T11:00:00Z","company_name":"A","contact_name":"B","email":"b@example.com"}`
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "same-key"}
	if w := serve(r, http.MethodPost, "/api/v1/appointments", body, hdr); w.Code != http.StatusCreated {
		t.Fatalf("client 1: %d", w.Code)
	}

	// Another client reusing the key does not get client 1's appointment.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderIdempotencyKey, "same-key")
	req.RemoteAddr = "198.51.100.20:5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("client 2 should hit the taken slot, got %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip, got %v", w.Header())
	}
}

func Test_routeClassifier(t *testing.T) {
	c := routeClassifier("/api/v1")
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/subsidies", config.RouteClassPublicRead},
		{http.MethodGet, "/api/v1/subsidies/search", config.RouteClassPublicRead},
		{http.MethodGet, "/api/v1/subsidies/:id", config.RouteClassPublicRead},
		{http.MethodGet, "/api/v1/availability", config.RouteClassPublicRead},
		{http.MethodPost, "/api/v1/appointments", config.RouteClassBooking},
		{http.MethodGet, "/api/v1/appointments", config.RouteClassDefault},
		{http.MethodGet, "/health", config.RouteClassDefault},
	}
	for _, tc := range tests {
		if got := c.Classify(tc.method, tc.path); got != tc.want {
			t.Fatalf("%s %s = %q, want %q", tc.method, tc.path, got, tc.want)
		}
	}
	if got := routeClassifier("/").Classify(http.MethodPost, "/appointments"); got != config.RouteClassBooking {
		t.Fatalf("root base: %q", got)
	}
}

func TestNewLimiter_RequiresDefaultClass(t *testing.T) {
	_, err := NewLimiter(config.RateLimitConfig{
		Window:  time.Minute,
		Classes: []config.RouteClassLimit{{Name: config.RouteClassBooking, Limit: 1}},
	}, ratelimit.NewMemoryStore())
	if err == nil {
		t.Fatal("expected error without default class")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_apiRoot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Group(apiRoot("/")).GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	r.Group(apiRoot("/api")).GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestCORSHandlers_RejectsUnlistedOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(corsHandlers([]string{"https://ok.example"})...)
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(r, http.MethodGet, "/x", "", map[string]string{"Origin": "https://evil.example"})
	if got := w.Header().Get(headerAllowOrigin); got != "" {
		t.Fatalf("unlisted origin echoed: %q", got)
	}
	w = serve(r, http.MethodOptions, "/x", "", map[string]string{
		"Origin":                        "https://ok.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := w.Header().Get(headerAllowOrigin); got != "https://ok.example" {
		t.Fatalf("preflight ACAO = %q", got)
	}
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
}

func TestRegisterRoutes_MetricsNotDoubleCompressed(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	w := serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Header().Get("Content-Encoding") != "" {
		t.Fatalf("uncompressed scrape got Content-Encoding %q", w.Header().Get("Content-Encoding"))
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("# HELP")) {
		t.Fatalf("metrics body not plain text: %.64q", w.Body.String())
	}
}
