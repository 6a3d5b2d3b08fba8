// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, datastore selection, rate-limit classes,
// response cache TTLs, the consultation business-hours policy and observability.
//
// Everything here is read once at startup. An invalid or missing required value
// is a configuration error: Load returns it and MustLoad panics, so a broken
// deployment never starts serving.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // operating time zone must resolve on minimal images
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-subsidy-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and addresses the datastore.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	DSN    string // Postgres DSN

	// MaxOpenConns caps the pool; 0 picks a per-driver default.
	MaxOpenConns int
	// SlowQuery is the threshold above which queries are logged at warn.
	SlowQuery time.Duration
}

// RedisConfig addresses the shared store for rate-limit windows. An empty URL
// keeps window state in process memory.
type RedisConfig struct {
	URL         string
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// RouteClassLimit is the quota applied to one route class.
type RouteClassLimit struct {
	Name  string
	Limit int64
}

// Route class names shared by the router and the limiter policy.
const (
	RouteClassPublicRead = "public-read"
	RouteClassBooking    = "booking"
	RouteClassDefault    = "default"
)

// RateLimitConfig configures the fixed-window limiter.
type RateLimitConfig struct {
	Window   time.Duration
	Classes  []RouteClassLimit
	FailOpen bool          // admit when the window store is unreachable
	IdleTTL  time.Duration // evict in-memory windows idle this long

	TrustProxyHeaders bool   // only true behind a reverse proxy that rewrites ClientIPHeader
	ClientIPHeader    string // e.g. X-Forwarded-For
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Capacity     int
	SubsidyTTL   time.Duration // subsidy:{id}
	ListTTL      time.Duration // subsidies:list:*
	CatalogTTL   time.Duration // catalog:published
	NegativeTTL  time.Duration // cached "not found"
	StaleCeiling time.Duration // how long past TTL a value may be served on producer failure
	FetchTimeout time.Duration // bound on a single datastore read
}

// BookingConfig is the consultation business-hours policy.
type BookingConfig struct {
	TimeZone      string
	Location      *time.Location
	Weekdays      []time.Weekday
	DayStart      string // HH:MM
	DayEnd        string // HH:MM
	SlotDuration  time.Duration
	HorizonMonths int
	MinLeadTime   time.Duration
}

// CalendarConfig addresses the remote calendar that owns busy intervals.
type CalendarConfig struct {
	URL     string
	Token   string
	ID      string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration // drain budget on SIGTERM
	MaxHeaderBytes    int
}

// Config is the full runtime configuration.
type Config struct {
	Server ServerConfig

	GinMode        string // debug|release|test
	LogLevel       string // zerolog level name
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string // normalized, no trailing slash

	DB    DBConfig
	Redis RedisConfig

	RateLimit RateLimitConfig
	Cache     CacheConfig
	Booking   BookingConfig
	Calendar  CalendarConfig

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration // retention of stored booking results

	OTEL OTELConfig
}

// Limit returns the configured quota for a route class and whether it exists.
func (c RateLimitConfig) Limit(class string) (int64, bool) {
	for _, rc := range c.Classes {
		if rc.Name == class {
			return rc.Limit, true
		}
	}
	return 0, false
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}


// Load reads the environment, fills defaults, normalizes spellings and
// validates the result. Malformed numbers, durations and booleans fall back
// to their defaults; out-of-range values are errors.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Port:              envStr("PORT", "8080"),
			ReadTimeout:       envDur("READ_TIMEOUT", 15*time.Second),
			ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
			WriteTimeout:      envDur("WRITE_TIMEOUT", 20*time.Second),
			IdleTimeout:       envDur("IDLE_TIMEOUT", time.Minute),
			ShutdownTimeout:   envDur("SHUTDOWN_TIMEOUT", 15*time.Second),
			MaxHeaderBytes:    envInt("MAX_HEADER_BYTES", 1<<20),
		},

		GinMode:        strings.ToLower(envStr("GIN_MODE", "release")),
		LogLevel:       strings.ToLower(envStr("LOG_LEVEL", "info")),
		LogPretty:      envBool("LOG_PRETTY", false),
		SwaggerEnabled: envBool("SWAGGER_ENABLED", false),
		APIBasePath:    cleanBasePath(envStr("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver:       strings.ToLower(envStr("DB_DRIVER", "sqlite")),
			Path:         envStr("DB_PATH", "app.db"),
			DSN:          envStr("DB_DSN", ""),
			MaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 0),
			SlowQuery:    envDur("DB_SLOW_QUERY", 200*time.Millisecond),
		},
		Redis: RedisConfig{
			URL:         envStr("REDIS_URL", ""),
			DialTimeout: envDur("REDIS_DIAL_TIMEOUT", 2*time.Second),
			OpTimeout:   envDur("REDIS_OP_TIMEOUT", 250*time.Millisecond),
		},

		RateLimit: RateLimitConfig{
			Window: envDur("RATE_LIMIT_WINDOW", time.Minute),
			Classes: []RouteClassLimit{
				{Name: RouteClassPublicRead, Limit: int64(envInt("RATE_LIMIT_PUBLIC_READ", 60))},
				{Name: RouteClassBooking, Limit: int64(envInt("RATE_LIMIT_BOOKING", 5))},
				{Name: RouteClassDefault, Limit: int64(envInt("RATE_LIMIT_DEFAULT", 120))},
			},
			FailOpen:          envBool("RATE_LIMIT_FAIL_OPEN", true),
			IdleTTL:           envDur("RATE_LIMIT_IDLE_TTL", 10*time.Minute),
			TrustProxyHeaders: envBool("TRUST_PROXY_HEADERS", false),
			ClientIPHeader:    envStr("CLIENT_IP_HEADER", "X-Forwarded-For"),
		},

		Cache: CacheConfig{
			Capacity:     envInt("CACHE_CAPACITY", 2048),
			SubsidyTTL:   envDur("CACHE_SUBSIDY_TTL", 5*time.Minute),
			ListTTL:      envDur("CACHE_LIST_TTL", time.Minute),
			CatalogTTL:   envDur("CACHE_CATALOG_TTL", 10*time.Minute),
			NegativeTTL:  envDur("CACHE_NEGATIVE_TTL", 30*time.Second),
			StaleCeiling: envDur("CACHE_STALE_CEILING", time.Hour),
			FetchTimeout: envDur("CACHE_FETCH_TIMEOUT", 3*time.Second),
		},

		Booking: BookingConfig{
			TimeZone:      envStr("BOOKING_TIMEZONE", "Asia/Tokyo"),
			DayStart:      envStr("BOOKING_DAY_START", "09:00"),
			DayEnd:        envStr("BOOKING_DAY_END", "17:00"),
			SlotDuration:  envDur("BOOKING_SLOT_DURATION", time.Hour),
			HorizonMonths: envInt("BOOKING_HORIZON_MONTHS", 3),
			MinLeadTime:   envDur("BOOKING_MIN_LEAD_TIME", 0),
		},

		Calendar: CalendarConfig{
			URL:     envStr("CALENDAR_URL", ""),
			Token:   envStr("CALENDAR_TOKEN", ""),
			ID:      envStr("CALENDAR_ID", "primary"),
			Timeout: envDur("CALENDAR_TIMEOUT", 5*time.Second),
			RPS:     envFloat("CALENDAR_RPS", 5),
			Burst:   envInt("CALENDAR_BURST", 5),
		},

		CORS: CORSConfig{AllowedOrigins: splitCSV(envStr("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: envBool("ENABLE_HSTS", false),
			HSTSMaxAge: envDur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: envDur("IDEMPOTENCY_TTL", 24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			Endpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: envStr("OTEL_SERVICE_NAME", "go-subsidy-backend"),
			SampleRatio: envFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	if err := cfg.Booking.resolve(envStr("BOOKING_WEEKDAYS", "mon,tue,wed,thu,fri")); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var (
	ginModes   = map[string]bool{"debug": true, "release": true, "test": true}
	logLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	driverAliases = map[string]string{"postgresql": "postgres", "pg": "postgres"}
)

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	if !ginModes[c.GinMode] {
		c.GinMode = "release"
	}
	if d, ok := driverAliases[c.DB.Driver]; ok {
		c.DB.Driver = d
	}
}

// check pairs a failing condition with the message reported for it.
type check struct {
	failed bool
	msg    string
}

func firstFailure(checks ...check) error {
	for _, ch := range checks {
		if ch.failed {
			return errors.New(ch.msg)
		}
	}
	return nil
}

func (c *Config) validate() error {
	s := c.Server
	err := firstFailure(
		check{!logLevels[c.LogLevel], "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		check{strings.TrimSpace(s.Port) == "", "PORT must not be empty"},
		check{min(s.ReadTimeout, s.ReadHeaderTimeout, s.WriteTimeout, s.IdleTimeout, s.ShutdownTimeout) <= 0,
			"timeouts must be positive durations"},
		check{s.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		check{c.DB.Driver != "sqlite" && c.DB.Driver != "postgres", "DB_DRIVER must be one of: sqlite, postgres"},
		check{c.DB.Driver == "sqlite" && strings.TrimSpace(c.DB.Path) == "", "DB_PATH must not be empty"},
		check{c.DB.Driver == "postgres" && strings.TrimSpace(c.DB.DSN) == "", "DB_DSN is required when DB_DRIVER=postgres"},
		check{c.DB.MaxOpenConns < 0, "DB_MAX_OPEN_CONNS must be >= 0"},
		check{c.Redis.URL != "" && (c.Redis.DialTimeout <= 0 || c.Redis.OpTimeout <= 0),
			"REDIS_DIAL_TIMEOUT and REDIS_OP_TIMEOUT must be > 0"},
	)
	if err != nil {
		return err
	}
	if err := c.RateLimit.validate(); err != nil {
		return err
	}
	cc := c.Cache
	return firstFailure(
		check{cc.Capacity < 1, "CACHE_CAPACITY must be >= 1"},
		check{min(cc.SubsidyTTL, cc.ListTTL, cc.CatalogTTL, cc.NegativeTTL) <= 0, "cache TTLs must be positive durations"},
		check{cc.StaleCeiling < 0, "CACHE_STALE_CEILING must be >= 0"},
		check{cc.FetchTimeout <= 0, "CACHE_FETCH_TIMEOUT must be > 0"},
		check{c.Calendar.Timeout <= 0, "CALENDAR_TIMEOUT must be > 0"},
		check{c.Calendar.RPS < 0, "CALENDAR_RPS must be >= 0"},
		check{c.Calendar.Burst < 1, "CALENDAR_BURST must be >= 1"},
		check{c.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		check{c.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		check{c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	)
}

func (rl RateLimitConfig) validate() error {
	for _, rc := range rl.Classes {
		if rc.Limit < 1 {
			return fmt.Errorf("rate limit for route class %q must be >= 1", rc.Name)
		}
	}
	_, hasDefault := rl.Limit(RouteClassDefault)
	return firstFailure(
		check{rl.Window <= 0, "RATE_LIMIT_WINDOW must be > 0"},
		check{!hasDefault, "rate limit for the default route class is required"},
		check{rl.IdleTTL < rl.Window, "RATE_LIMIT_IDLE_TTL must be >= RATE_LIMIT_WINDOW"},
		check{rl.TrustProxyHeaders && strings.TrimSpace(rl.ClientIPHeader) == "",
			"CLIENT_IP_HEADER must be set when TRUST_PROXY_HEADERS is on"},
	)
}

// resolve loads the time zone, parses the weekday set and checks that the
// business-hours window can hold at least one slot.
func (b *BookingConfig) resolve(weekdays string) error {
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return fmt.Errorf("BOOKING_TIMEZONE %q: %w", b.TimeZone, err)
	}
	days, err := ParseWeekdays(weekdays)
	if err != nil {
		return err
	}
	start, err := ParseClock(b.DayStart)
	if err != nil {
		return fmt.Errorf("BOOKING_DAY_START: %w", err)
	}
	end, err := ParseClock(b.DayEnd)
	if err != nil {
		return fmt.Errorf("BOOKING_DAY_END: %w", err)
	}
	b.Location, b.Weekdays = loc, days
	return firstFailure(
		check{end <= start, "BOOKING_DAY_END must be after BOOKING_DAY_START"},
		check{b.SlotDuration <= 0 || b.SlotDuration > end-start, "BOOKING_SLOT_DURATION must be > 0 and fit within business hours"},
		check{b.HorizonMonths < 1, "BOOKING_HORIZON_MONTHS must be >= 1"},
		check{b.MinLeadTime < 0, "BOOKING_MIN_LEAD_TIME must be >= 0"},
	)
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekdays parses a CSV of three-letter weekday names ("mon,tue").
// Full names are accepted too. Duplicates collapse; order follows the week.
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var seen [7]bool
	for _, p := range splitCSV(s) {
		name := strings.ToLower(p)
		if len(name) > 3 {
			name = name[:3]
		}
		d, ok := weekdayNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", p)
		}
		seen[d] = true
	}
	var out []time.Weekday
	for d, on := range seen {
		if on {
			out = append(out, time.Weekday(d))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("BOOKING_WEEKDAYS must name at least one day")
	}
	return out, nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM)", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
