package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/utils/cache"
	"gorm.io/gorm"
)

// ItemKind distinguishes the two purchasable catalog item kinds
type ItemKind string

const (
	ItemKindCourse ItemKind = "course"
	ItemKindBundle ItemKind = "bundle"
)

// ItemRef identifies one purchasable catalog item
type ItemRef struct {
	Kind ItemKind
	ID   uint
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// ResolvedItem is the read-only catalog view the payment services work with
type ResolvedItem struct {
	Kind      ItemKind `json:"kind"`
	ID        uint     `json:"id"`
	Title     string   `json:"title"`
	Price     int64    `json:"price"` // minor units
	Currency  string   `json:"currency"`
	CourseIDs []uint   `json:"course_ids"` // the item's courses, bundle order preserved
}

// CatalogService resolves purchasable items. Lookups are cached in Redis
// with a short TTL; admin writes to courses/bundles invalidate.
type CatalogService struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

const catalogCacheTTL = 5 * time.Minute

// NewCatalogService creates a new catalog service. cache may be nil, in
// which case every resolve hits the database.
func NewCatalogService(db *gorm.DB, redisCache *cache.RedisCache) *CatalogService {
	return &CatalogService{db: db, cache: redisCache}
}

// ResolveItem loads the referenced course or bundle. Unknown or unpublished
// items return ErrNotFound.
func (s *CatalogService) ResolveItem(ctx context.Context, ref ItemRef) (*ResolvedItem, error) {
	cacheKey := "catalog:item:" + ref.String()

	if s.cache != nil {
		var cached ResolvedItem
		if err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	var item *ResolvedItem
	var err error
	switch ref.Kind {
	case ItemKindCourse:
		item, err = s.resolveCourse(ctx, ref.ID)
	case ItemKindBundle:
		item, err = s.resolveBundle(ctx, ref.ID)
	default:
		return nil, &ValidationError{Field: "item", Reason: fmt.Sprintf("unknown item kind %q", ref.Kind)}
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, item, catalogCacheTTL); err != nil {
			log.Printf("[CATALOG] Failed to cache item %s: %v", ref, err)
		}
	}

	return item, nil
}

// InvalidateItem drops the cached entry for one item. Called from the admin
// course/bundle handlers after a write.
func (s *CatalogService) InvalidateItem(ctx context.Context, ref ItemRef) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, "catalog:item:"+ref.String()); err != nil {
		log.Printf("[CATALOG] Failed to invalidate item %s: %v", ref, err)
	}
}

func (s *CatalogService) resolveCourse(ctx context.Context, id uint) (*ResolvedItem, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).
		Where("published = ?", true).
		First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve course %d: %w", id, err)
	}

	return &ResolvedItem{
		Kind:      ItemKindCourse,
		ID:        course.ID,
		Title:     course.Title,
		Price:     course.Price,
		Currency:  course.Currency,
		CourseIDs: []uint{course.ID},
	}, nil
}

func (s *CatalogService) resolveBundle(ctx context.Context, id uint) (*ResolvedItem, error) {
	var bundle model.Bundle
	if err := s.db.WithContext(ctx).
		Where("published = ?", true).
		First(&bundle, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve bundle %d: %w", id, err)
	}

	courseIDs, err := s.BundleCourseIDs(ctx, bundle.ID)
	if err != nil {
		return nil, err
	}

	return &ResolvedItem{
		Kind:      ItemKindBundle,
		ID:        bundle.ID,
		Title:     bundle.Title,
		Price:     bundle.Price,
		Currency:  bundle.Currency,
		CourseIDs: courseIDs,
	}, nil
}

// BundleCourseIDs returns the bundle's course ids in position order. Read
// fresh on every call: the granter must see the bundle contents as of grant
// time, not as of purchase time.
func (s *CatalogService) BundleCourseIDs(ctx context.Context, bundleID uint) ([]uint, error) {
	var rows []model.BundleCourse
	if err := s.db.WithContext(ctx).
		Where("bundle_id = ?", bundleID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list bundle %d courses: %w", bundleID, err)
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.CourseID)
	}
	return ids, nil
}

// SumCoursePrices returns the total list price of the given courses,
// used to show bundle savings on the checkout page.
func (s *CatalogService) SumCoursePrices(ctx context.Context, courseIDs []uint) (int64, error) {
	if len(courseIDs) == 0 {
		return 0, nil
	}
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&model.Course{}).
		Where("id IN ?", courseIDs).
		Select("COALESCE(SUM(price), 0)").
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to sum course prices: %w", err)
	}
	return total, nil
}
