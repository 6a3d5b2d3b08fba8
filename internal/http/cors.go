package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-subsidy-backend/internal/http/middleware"
	"github.com/tbourn/go-subsidy-backend/internal/ratelimit"
)

const headerAllowOrigin = "Access-Control-Allow-Origin"

var (
	corsAllowHeaders = []string{
		"Origin", "Content-Type", "Accept", "If-None-Match",
		middleware.HeaderIdempotencyKey,
	}
	corsExposeHeaders = []string{
		"X-Request-ID", "Content-Length", "ETag", "Retry-After",
		ratelimit.HeaderLimit, ratelimit.HeaderRemaining, ratelimit.HeaderReset,
		middleware.HeaderIdempotencyReplayed,
	}
)

// corsHandlers returns the CORS middleware pair. With no origins configured
// every origin is allowed; otherwise only the listed ones. The first handler
// also sets Access-Control-Allow-Origin on requests gin-contrib/cors skips,
// such as those without an Origin header.
func corsHandlers(origins []string) []gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  corsAllowHeaders,
		ExposeHeaders: corsExposeHeaders,
		MaxAge:        12 * time.Hour,
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	if len(origins) == 0 {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}

	echo := func(c *gin.Context) {
		h := c.Writer.Header()
		switch origin := c.GetHeader("Origin"); {
		case conf.AllowAllOrigins:
			h.Set(headerAllowOrigin, "*")
		case allowed[origin]:
			h.Set(headerAllowOrigin, origin)
			h.Add("Vary", "Origin")
		}
		c.Next()
	}
	return []gin.HandlerFunc{echo, cors.New(conf)}
}
