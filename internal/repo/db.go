// Package repo is the GORM persistence layer: the published subsidy catalog,
// booked appointments and stored idempotency results. It runs on SQLite
// (pure Go driver) for single-node deployments and PostgreSQL otherwise.
package repo

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-subsidy-backend/internal/config"
	"github.com/tbourn/go-subsidy-backend/internal/domain"
)

const (
	defaultSQLiteConns   = 10
	defaultPostgresConns = 25
)

// sqlitePragmas are applied by the driver on every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// Open connects to the datastore selected by cfg.Driver, routes GORM's log
// output through zerolog and installs the OpenTelemetry plugin so every
// query becomes a span.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	var dial gorm.Dialector
	maxOpen := cfg.MaxOpenConns
	switch cfg.Driver {
	case "postgres":
		dial = postgres.Open(cfg.DSN)
		if maxOpen == 0 {
			maxOpen = defaultPostgresConns
		}
	case "sqlite", "":
		dsn, err := sqliteDSN(cfg.Path)
		if err != nil {
			return nil, err
		}
		dial = sqlite.Open(dsn)
		if maxOpen == 0 {
			maxOpen = defaultSQLiteConns
		}
	default:
		return nil, fmt.Errorf("repo: unsupported DB_DRIVER %q", cfg.Driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger:         newGormLogger(cfg.SlowQuery),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Use(tracing.NewPlugin()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("repo: install tracing plugin: %w", err)
	}
	return db, nil
}

// sqliteDSN appends the connection pragmas to path. The parent directory
// must exist; SQLite itself reports a missing one as "out of memory".
func sqliteDSN(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("repo: empty SQLite path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return "", fmt.Errorf("repo: sqlite directory: %w", err)
		}
	}
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode(), nil
}

// zerologWriter adapts GORM's printf-style logger to the global zerolog logger.
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...any) {
	log.Warn().Str("component", "gorm").Msgf(format, args...)
}

// newGormLogger logs slow queries and errors only. Record-not-found is a
// normal outcome here (catalog misses, idempotency lookups) and stays quiet.
func newGormLogger(slow time.Duration) logger.Interface {
	return logger.New(zerologWriter{}, logger.Config{
		SlowThreshold:             slow,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// AutoMigrate creates or updates the schema for all persisted models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Subsidy{},
		&domain.Appointment{},
		&domain.Idempotency{},
	)
}
