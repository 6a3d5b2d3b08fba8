// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Subsidy
// catalog.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They are
// thin: no caching and no business rules, only query composition.
//
// Error semantics:
//   - A missing row is reported as ErrNotFound (alias of gorm.ErrRecordNotFound).
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-subsidy-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// SubsidyFilter narrows catalog listings. Empty fields do not filter.
type SubsidyFilter struct {
	Region   string
	Category string
	Keyword  string // matched against title and summary
}

func (f SubsidyFilter) apply(q *gorm.DB) *gorm.DB {
	q = q.Where("published = ?", true)
	if f.Region != "" {
		q = q.Where("region = ?", f.Region)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		like := "%" + escapeLike(kw) + "%"
		q = q.Where("(title LIKE ? ESCAPE '\\' OR summary LIKE ? ESCAPE '\\')", like, like)
	}
	return q
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// CreateSubsidy inserts a subsidy. An empty ID is replaced by a new UUID.
func CreateSubsidy(ctx context.Context, db *gorm.DB, s *domain.Subsidy) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return db.WithContext(ctx).Create(s).Error
}

// GetSubsidy fetches one published subsidy by ID, or ErrNotFound.
func GetSubsidy(ctx context.Context, db *gorm.DB, id string) (*domain.Subsidy, error) {
	var s domain.Subsidy
	err := db.WithContext(ctx).
		Where("id = ? AND published = ?", id, true).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSubsidies returns the number of published subsidies matching f.
func CountSubsidies(ctx context.Context, db *gorm.DB, f SubsidyFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Subsidy{})).Count(&total).Error
	return total, err
}

// ListSubsidiesPage returns a page of published subsidies matching f, newest
// first. The caller computes offset and limit.
func ListSubsidiesPage(ctx context.Context, db *gorm.DB, f SubsidyFilter, offset, limit int) ([]domain.Subsidy, error) {
	var out []domain.Subsidy
	err := f.apply(db.WithContext(ctx).Model(&domain.Subsidy{})).
		Order("created_at desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPublishedSubsidies returns the whole published catalog, used to build
// the in-memory search index.
func ListPublishedSubsidies(ctx context.Context, db *gorm.DB) ([]domain.Subsidy, error) {
	var out []domain.Subsidy
	err := db.WithContext(ctx).
		Where("published = ?", true).
		Order("id").
		Find(&out).Error
	return out, err
}

// GetSubsidiesByIDs returns the published subsidies with the given IDs, in
// no particular order.
func GetSubsidiesByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Subsidy, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Subsidy
	err := db.WithContext(ctx).
		Where("id IN ? AND published = ?", ids, true).
		Find(&out).Error
	return out, err
}
