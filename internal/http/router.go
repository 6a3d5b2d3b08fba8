// Package httpapi serves the subsidy catalog and consultation booking API
// over Gin.
//
// Every request passes the edge chain (tracing, request id, access log,
// recovery, body cap, metrics, CORS, security headers, gzip). Operational
// endpoints (/health, /metrics, /swagger) sit beside the API group and are
// never rate limited. Inside the API group the idempotency validator runs
// before the limiter so that replays of a stored booking skip the quota.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-subsidy-backend/docs"
	"github.com/tbourn/go-subsidy-backend/internal/config"
	"github.com/tbourn/go-subsidy-backend/internal/http/handlers"
	"github.com/tbourn/go-subsidy-backend/internal/http/middleware"
	"github.com/tbourn/go-subsidy-backend/internal/ratelimit"
	"github.com/tbourn/go-subsidy-backend/internal/repo"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
	"github.com/tbourn/go-subsidy-backend/internal/services"
)

const maxBodyBytes = 1 << 20

// Deps carries the long-lived components built at startup. Both are required.
type Deps struct {
	Limiter   *ratelimit.Limiter
	Scheduler *scheduler.Scheduler
}

// NewLimiter builds the fixed-window limiter from configuration.
func NewLimiter(cfg config.RateLimitConfig, store ratelimit.Store) (*ratelimit.Limiter, error) {
	classes := make(map[string]int64, len(cfg.Classes))
	for _, rc := range cfg.Classes {
		classes[rc.Name] = rc.Limit
	}
	return ratelimit.New(store, cfg.Window, classes, ratelimit.WithFailOpen(cfg.FailOpen))
}

// RegisterRoutes installs the edge chain, the operational endpoints and the
// API group on r.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) error {
	if deps.Limiter == nil || deps.Scheduler == nil {
		return errors.New("httpapi: limiter and scheduler are required")
	}
	base := apiRoot(cfg.APIBasePath)

	r.HandleMethodNotAllowed = true
	r.Use(edgeChain(cfg, base)...)
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	mountAPI(r.Group(base), base, db, deps, cfg)
	return nil
}

// edgeChain is the middleware every request passes, outermost first.
func edgeChain(cfg config.Config, base string) []gin.HandlerFunc {
	// Bookings carry contact details, so only debug mode logs raw requests.
	access := middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	})
	if cfg.GinMode == gin.DebugMode {
		access = middleware.Logger()
	}

	chain := []gin.HandlerFunc{
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		access,
		middleware.Recovery(),
		limitBody(maxBodyBytes),
		middleware.Metrics(),
	}
	chain = append(chain, corsHandlers(cfg.CORS.AllowedOrigins)...)
	return append(chain,
		middleware.SecurityHeaders(middleware.SecurityOptions{
			EnableHSTS:   cfg.Security.EnableHSTS,
			HSTSMaxAge:   cfg.Security.HSTSMaxAge,
			NoStorePaths: []string{base + "/availability", base + "/appointments"},
			EnablePolicy: true,
		}),
		// promhttp negotiates its own compression.
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})),
	)
}

// mountAPI registers the catalog and booking endpoints behind idempotency
// validation and the rate limiter.
func mountAPI(api *gin.RouterGroup, base string, db *gorm.DB, deps Deps, cfg config.Config) {
	h := handlers.New(
		services.NewSubsidyService(db, cfg.Cache),
		services.NewBookingService(db, deps.Scheduler, cfg.IdempotencyTTL),
	)
	identity := ratelimit.IdentityOptions{
		TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		Header:            cfg.RateLimit.ClientIPHeader,
	}

	api.Use(
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{
			Scope: func(c *gin.Context) string {
				return middleware.ClientID(c, identity) + "|" + c.FullPath()
			},
		}, storedResultLookup(db)),
		middleware.RateLimit(deps.Limiter, middleware.RateLimitOptions{
			Classifier: routeClassifier(base),
			Identity:   identity,
		}),
	)

	api.GET("/subsidies", h.ListSubsidies)
	api.GET("/subsidies/search", h.SearchSubsidies)
	api.GET("/subsidies/:id", h.GetSubsidy)
	api.GET("/availability", h.GetAvailability)
	api.POST("/appointments", h.CreateAppointment)
}

// storedResultLookup reports whether an unexpired booking result is stored
// under (scope, key).
func storedResultLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, scope, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return rec != nil, err
	}
}

// routeClassifier maps API routes to their quota class. Classification runs
// on the matched route, so prefixes include the API root.
func routeClassifier(base string) *ratelimit.Classifier {
	return ratelimit.NewClassifier(
		ratelimit.Rule{Method: http.MethodGet, PathPrefix: base + "/subsidies", Class: config.RouteClassPublicRead},
		ratelimit.Rule{Method: http.MethodGet, PathPrefix: base + "/availability", Class: config.RouteClassPublicRead},
		ratelimit.Rule{Method: http.MethodPost, PathPrefix: base + "/appointments", Class: config.RouteClassBooking},
	)
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// apiRoot returns the group prefix for basePath; the root path mounts at "".
func apiRoot(basePath string) string {
	if basePath == "/" {
		return ""
	}
	return basePath
}
