// Subsidy HTTP handlers.
//
// This file exposes the read-only catalog:
//   - GET /subsidies          (list, paginated, region/category/q filters, ETag support)
//   - GET /subsidies/search   (ranked keyword search over the published catalog)
//   - GET /subsidies/{id}     (one published subsidy)
//
// Responses come from the service's get-or-compute caches; the handlers only
// validate input and map errors.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-subsidy-backend/internal/domain"
	"github.com/tbourn/go-subsidy-backend/internal/repo"
	"github.com/tbourn/go-subsidy-backend/internal/services"
)

const (
	maxQueryRunes   = 100
	defaultSearchK  = 10
	maxSearchK      = 50
	maxFacetLen     = 64
	catalogCacheAge = "public, max-age=60"
)

//
// DTOs
//

// ListSubsidiesResponse wraps a page of subsidies and pagination information.
type ListSubsidiesResponse struct {
	Subsidies  []domain.Subsidy `json:"subsidies"`
	Pagination Pagination       `json:"pagination"`
}

// SearchSubsidiesResponse contains ranked hits for a query.
type SearchSubsidiesResponse struct {
	Query string               `json:"query"`
	Hits  []services.SearchHit `json:"hits"`
}

//
// Helpers
//

// subsidyFilter reads the listing filters from the query string.
func subsidyFilter(c *gin.Context) (repo.SubsidyFilter, error) {
	f := repo.SubsidyFilter{
		Region:   strings.TrimSpace(c.Query("region")),
		Category: strings.TrimSpace(c.Query("category")),
		Keyword:  strings.TrimSpace(c.Query("q")),
	}
	if len(f.Region) > maxFacetLen || len(f.Category) > maxFacetLen {
		return f, errors.New("region and category must be at most 64 bytes")
	}
	if utf8.RuneCountInString(f.Keyword) > maxQueryRunes {
		return f, fmt.Errorf("q too long: max %d characters", maxQueryRunes)
	}
	return f, nil
}

// etagMatches sets etag on the response and reports whether the request's
// If-None-Match already names it.
func etagMatches(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	if strings.TrimSpace(inm) == "*" {
		return true
	}
	for _, tag := range strings.Split(inm, ",") {
		if strings.TrimSpace(tag) == etag {
			return true
		}
	}
	return false
}

//
// Handlers
//

// ListSubsidies godoc
// @ID          listSubsidies
// @Summary     List published subsidies (paginated)
// @Description Returns a page of published subsidies, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Subsidies
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       region         query   string  false "Region facet"                example(tokyo)
// @Param       category       query   string  false "Category facet"              example(it)
// @Param       q              query   string  false "Keyword in title or summary" maxlength(100)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSubsidiesResponse
// @Header      200  {string} ETag                   "Weak ETag for current result"
// @Header      200  {string} X-RateLimit-Remaining  "Requests left in the current window"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /subsidies [get]
func (h *Handlers) ListSubsidies(c *gin.Context) {
	ctx := c.Request.Context()
	f, err := subsidyFilter(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.subsidySvc.Stats(ctx, f); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"subsidies:%s:%s:%s:%d:%d:%d:%d"`, f.Region, f.Category, f.Keyword, page, pageSize, count, ts)
		if etagMatches(c, etag) {
			notModified(c)
			return
		}
	}

	items, total, err := h.subsidySvc.List(ctx, f, page, pageSize)
	if err != nil {
		failErr(c, err, apiError{http.StatusInternalServerError, ErrCodeListFailed, "could not list subsidies"})
		return
	}

	c.Header("Cache-Control", catalogCacheAge)
	ok(c, http.StatusOK, ListSubsidiesResponse{
		Subsidies:  items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// SearchSubsidies godoc
// @ID          searchSubsidies
// @Summary     Search subsidies
// @Description Ranks published subsidies against q. Full-width and half-width forms match.
// @Tags        Subsidies
// @Produce     json
//
// @Param       q      query  string  true  "Search text"          maxlength(100) example(IT導入)
// @Param       limit  query  int     false "Maximum hits"         minimum(1) maximum(50) default(10)
//
// @Success     200  {object} handlers.SearchSubsidiesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /subsidies/search [get]
func (h *Handlers) SearchSubsidies(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q required")
		return
	}
	if utf8.RuneCountInString(q) > maxQueryRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("q too long: max %d characters", maxQueryRunes))
		return
	}
	k := queryInt(c, "limit", defaultSearchK, 1, maxSearchK)

	hits, err := h.subsidySvc.Search(c.Request.Context(), q, k)
	if err != nil {
		failErr(c, err, apiError{http.StatusInternalServerError, ErrCodeSearchFailed, "search failed"})
		return
	}
	if hits == nil {
		hits = []services.SearchHit{}
	}
	c.Header("Cache-Control", catalogCacheAge)
	ok(c, http.StatusOK, SearchSubsidiesResponse{Query: q, Hits: hits})
}

// GetSubsidy godoc
// @ID          getSubsidy
// @Summary     Get a subsidy
// @Description Returns one published subsidy.
// @Tags        Subsidies
// @Produce     json
//
// @Param       id  path  string  true  "Subsidy ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Subsidy
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subsidy not found"
// @Failure     429  {object} handlers.ErrorResponse "Rate limited"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /subsidies/{id} [get]
func (h *Handlers) GetSubsidy(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subsidy id must be a UUID")
		return
	}

	s, err := h.subsidySvc.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err, apiError{http.StatusInternalServerError, ErrCodeInternal, "could not load subsidy"})
		return
	}

	etag := fmt.Sprintf(`W/"subsidy:%s:%d"`, s.ID, s.UpdatedAt.Unix())
	if etagMatches(c, etag) {
		notModified(c)
		return
	}
	c.Header("Cache-Control", catalogCacheAge)
	ok(c, http.StatusOK, s)
}
