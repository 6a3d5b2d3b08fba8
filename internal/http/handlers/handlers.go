// Package handlers exposes the public REST endpoints:
//   - GET  /subsidies              (list, paginated, filters, ETag support)
//   - GET  /subsidies/search       (ranked keyword search)
//   - GET  /subsidies/{id}         (one published subsidy)
//   - GET  /availability           (free consultation slots for a date)
//   - POST /appointments           (book a slot, idempotent)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-subsidy-backend/internal/domain"
	"github.com/tbourn/go-subsidy-backend/internal/repo"
	"github.com/tbourn/go-subsidy-backend/internal/scheduler"
	"github.com/tbourn/go-subsidy-backend/internal/services"
)

// SubsidyService is the catalog read side. Implementations are safe for
// concurrent use and honor ctx cancellation.
type SubsidyService interface {
	Get(ctx context.Context, id string) (*domain.Subsidy, error)
	List(ctx context.Context, f repo.SubsidyFilter, page, pageSize int) ([]domain.Subsidy, int64, error)
	Search(ctx context.Context, q string, k int) ([]services.SearchHit, error)
	// Stats returns the count and latest update of a listing, for ETags.
	Stats(ctx context.Context, f repo.SubsidyFilter) (int64, *time.Time, error)
}

// BookingService computes availability and books consultations. Book
// reports replayed=true when (scope, key) already produced an appointment.
type BookingService interface {
	Availability(ctx context.Context, date string) (scheduler.Availability, error)
	Book(ctx context.Context, scope, key string, req services.BookingRequest) (appt *domain.Appointment, replayed bool, err error)
}

// Handlers serves the catalog and booking endpoints.
type Handlers struct {
	subsidySvc SubsidyService
	bookingSvc BookingService
}

func New(subsidySvc SubsidyService, bookingSvc BookingService) *Handlers {
	return &Handlers{subsidySvc: subsidySvc, bookingSvc: bookingSvc}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination describes the page returned by a list endpoint.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages, HasNext: page < pages}
}

// clampPagination reads page and page_size, bounded to [1, ∞) and
// [1, maxPageSize].
func clampPagination(c *gin.Context) (page, pageSize int) {
	return queryInt(c, "page", 1, 1, math.MaxInt32),
		queryInt(c, "page_size", defaultPageSize, 1, maxPageSize)
}

// queryInt parses an integer query parameter, using def when it is absent or
// malformed, and clamps the result to [lo, hi].
func queryInt(c *gin.Context, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		v = def
	}
	return min(max(v, lo), hi)
}
