// Package services – SubsidyService
//
// This file implements SubsidyService, the read side of the public catalog.
// Every read goes through a get-or-compute cache so that bursts of identical
// requests cost one datastore query:
//
//	subsidy:{id}                                     one published subsidy (misses are negatively cached)
//	subsidies:list:{region}:{category}:{q}:{page}:{size}  one filtered page
//	catalog:published                                the ranked search index
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-subsidy-backend/internal/cache"
	"github.com/tbourn/go-subsidy-backend/internal/config"
	"github.com/tbourn/go-subsidy-backend/internal/domain"
	"github.com/tbourn/go-subsidy-backend/internal/repo"
	"github.com/tbourn/go-subsidy-backend/internal/search"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const catalogKey = "catalog:published"

// SubsidyPage is one page of a filtered listing.
type SubsidyPage struct {
	Items []domain.Subsidy
	Total int64
}

// SearchHit is a ranked search result.
type SearchHit struct {
	Subsidy domain.Subsidy `json:"subsidy"`
	Score   float64        `json:"score"`
}

// catalog is the cached search snapshot of all published subsidies.
type catalog struct {
	index search.Index
	byID  map[string]domain.Subsidy
}

// SubsidyService serves catalog reads through per-instance caches.
type SubsidyService struct {
	DB *gorm.DB

	subsidies *cache.Cache[*domain.Subsidy]
	lists     *cache.Cache[SubsidyPage]
	catalogs  *cache.Cache[*catalog]

	subsidyTTL time.Duration
	listTTL    time.Duration
	catalogTTL time.Duration
}

// NewSubsidyService wires the catalog caches from cfg.
func NewSubsidyService(db *gorm.DB, cfg config.CacheConfig) *SubsidyService {
	base := cache.Options{
		Capacity:     cfg.Capacity,
		StaleCeiling: cfg.StaleCeiling,
		FetchTimeout: cfg.FetchTimeout,
	}
	subs := base
	subs.Name = "subsidy"
	subs.NegativeTTL = cfg.NegativeTTL
	lists := base
	lists.Name = "subsidy_list"
	cat := base
	cat.Name = "catalog"
	cat.Capacity = 1

	return &SubsidyService{
		DB:         db,
		subsidies:  cache.New[*domain.Subsidy](subs),
		lists:      cache.New[SubsidyPage](lists),
		catalogs:   cache.New[*catalog](cat),
		subsidyTTL: cfg.SubsidyTTL,
		listTTL:    cfg.ListTTL,
		catalogTTL: cfg.CatalogTTL,
	}
}

// Get returns one published subsidy.
func (s *SubsidyService) Get(ctx context.Context, id string) (*domain.Subsidy, error) {
	tr := otel.Tracer("services/SubsidyService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("subsidy.id", id)))
	defer span.End()

	v, err := s.subsidies.GetOrCompute(ctx, "subsidy:"+id, s.subsidyTTL, func(ctx context.Context) (*domain.Subsidy, error) {
		sub, err := repo.GetSubsidy(ctx, s.DB, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, cache.ErrNotFound
		}
		return sub, err
	})
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrSubsidyNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	// Callers get their own copy; the cached pointer stays immutable.
	out := *v
	return &out, nil
}

// List returns one page of published subsidies matching f.
func (s *SubsidyService) List(ctx context.Context, f repo.SubsidyFilter, page, pageSize int) ([]domain.Subsidy, int64, error) {
	tr := otel.Tracer("services/SubsidyService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("filter.region", f.Region),
			attribute.String("filter.category", f.Category),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	f.Keyword = strings.TrimSpace(f.Keyword)

	key := fmt.Sprintf("subsidies:list:%s:%s:%s:%d:%d", f.Region, f.Category, f.Keyword, page, pageSize)
	p, err := s.lists.GetOrCompute(ctx, key, s.listTTL, func(ctx context.Context) (SubsidyPage, error) {
		total, err := repo.CountSubsidies(ctx, s.DB, f)
		if err != nil {
			return SubsidyPage{}, err
		}
		if total == 0 {
			return SubsidyPage{Items: []domain.Subsidy{}}, nil
		}
		items, err := repo.ListSubsidiesPage(ctx, s.DB, f, (page-1)*pageSize, pageSize)
		if err != nil {
			return SubsidyPage{}, err
		}
		return SubsidyPage{Items: items, Total: total}, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, 0, err
	}
	items := make([]domain.Subsidy, len(p.Items))
	copy(items, p.Items)
	return items, p.Total, nil
}

// Search ranks the published catalog against q and returns at most k hits.
func (s *SubsidyService) Search(ctx context.Context, q string, k int) ([]SearchHit, error) {
	tr := otel.Tracer("services/SubsidyService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.String("query", q), attribute.Int("k", k)),
	)
	defer span.End()

	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}

	cat, err := s.catalogs.GetOrCompute(ctx, catalogKey, s.catalogTTL, s.loadCatalog)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := cat.index.TopK(q, k)
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		if sub, ok := cat.byID[r.ID]; ok {
			hits = append(hits, SearchHit{Subsidy: sub, Score: r.Score})
		}
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

func (s *SubsidyService) loadCatalog(ctx context.Context) (*catalog, error) {
	subs, err := repo.ListPublishedSubsidies(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	docs := make([]search.Document, 0, len(subs))
	byID := make(map[string]domain.Subsidy, len(subs))
	for _, sub := range subs {
		byID[sub.ID] = sub
		docs = append(docs, search.Document{
			ID:    sub.ID,
			Title: sub.Title,
			Body:  strings.Join([]string{sub.Summary, sub.Organization, sub.Region, sub.Category}, "\n"),
		})
	}
	return &catalog{index: search.New(docs), byID: byID}, nil
}

// Stats returns the count and latest update of the listing matching f, for
// conditional responses.
func (s *SubsidyService) Stats(ctx context.Context, f repo.SubsidyFilter) (int64, *time.Time, error) {
	return repo.CatalogStats(ctx, s.DB, f)
}

// Invalidate drops the cached subsidy id and the search catalog. Cached list
// pages are left to expire with their TTL. The API has no catalog write
// endpoint; a process that updates subsidies calls this after committing.
func (s *SubsidyService) Invalidate(id string) {
	s.subsidies.Invalidate("subsidy:" + id)
	s.catalogs.Invalidate(catalogKey)
}
