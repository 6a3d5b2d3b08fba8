// Command server runs the subsidy search API.
//
// @title       Subsidy Search API
// @version     1.0
// @description Public subsidy catalog and free-consultation booking, with per-route-class rate limiting.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-subsidy-backend/internal/calendar"
	"github.com/tbourn/go-subsidy-backend/internal/config"
	httpapi "github.com/tbourn/go-subsidy-backend/internal/http"
	"github.com/tbourn/go-subsidy-backend/internal/observability"
	"github.com/tbourn/go-subsidy-backend/internal/ratelimit"
	"github.com/tbourn/go-subsidy-backend/internal/repo"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
	"github.com/tbourn/go-subsidy-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const idempotencyPurgeEvery = time.Hour

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	cfg := config.MustLoad()
	sysutil.SetupLogger(nil, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer closeDB(db)
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	store, closeStore, err := newWindowStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter, err := httpapi.NewLimiter(cfg.RateLimit, store)
	if err != nil {
		return err
	}

	sched, err := newScheduler(cfg, db)
	if err != nil {
		return err
	}

	r := gin.New()
	if err := httpapi.RegisterRoutes(r, db, httpapi.Deps{Limiter: limiter, Scheduler: sched}, cfg); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", srv.Addr).
			Str("api_base", cfg.APIBasePath).
			Str("version", appVersion).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutting down")
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		purgeIdempotency(gctx, db, idempotencyPurgeEvery)
		return nil
	})
	return g.Wait()
}

// newWindowStore returns the shared Redis store when REDIS_URL is set and an
// in-process store otherwise. The returned func releases its resources.
func newWindowStore(ctx context.Context, cfg config.Config) (ratelimit.Store, func(), error) {
	if cfg.Redis.URL == "" {
		mem := ratelimit.NewMemoryStore(ratelimit.WithIdleTTL(cfg.RateLimit.IdleTTL))
		mem.StartJanitor(ctx, cfg.RateLimit.Window)
		log.Info().Msg("rate limit windows kept in memory (per instance)")
		return mem, func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Redis.DialTimeout > 0 {
		opt.DialTimeout = cfg.Redis.DialTimeout
	}
	client := redis.NewClient(opt)

	pctx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout+time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	log.Info().Str("addr", opt.Addr).Msg("rate limit windows shared via redis")

	store := ratelimit.NewRedisStore(client, ratelimit.WithOpTimeout(cfg.Redis.OpTimeout))
	return store, func() { _ = client.Close() }, nil
}

// newScheduler merges booked appointments with the remote calendar, when one
// is configured, into the busy source for the scheduler.
func newScheduler(cfg config.Config, db *gorm.DB) (*scheduler.Scheduler, error) {
	sources := []scheduler.Calendar{calendar.NewStoreSource(db)}
	if cfg.Calendar.URL != "" {
		remote, err := calendar.NewHTTPSource(cfg.Calendar, nil)
		if err != nil {
			return nil, err
		}
		sources = append(sources, remote)
	} else {
		log.Warn().Msg("CALENDAR_URL not set; only booked appointments count as busy")
	}

	policy, err := scheduler.NewPolicy(cfg.Booking)
	if err != nil {
		return nil, err
	}
	return scheduler.New(policy, calendar.Merge(sources...), scheduler.WithCalendarTimeout(cfg.Calendar.Timeout))
}

// purgeIdempotency removes expired idempotency keys every interval until ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged expired idempotency keys")
			}
		}
	}
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}
