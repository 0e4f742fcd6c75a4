package bundle

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/services"
	"github.com/ohmiler/milerdev-sub000/utils/response"
	"github.com/ohmiler/milerdev-sub000/utils/validation"
	"gorm.io/gorm"
)

// BundleHandler handles bundle-related requests
type BundleHandler struct {
	db        *gorm.DB
	catalog   *services.CatalogService
	validator *validation.Validator
}

// NewBundleHandler creates a new bundle handler
func NewBundleHandler(db *gorm.DB, catalog *services.CatalogService) *BundleHandler {
	return &BundleHandler{
		db:        db,
		catalog:   catalog,
		validator: validation.NewValidator(),
	}
}

// CreateBundleRequest represents the request body for creating a bundle
type CreateBundleRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=255"`
	Slug        string `json:"slug" validate:"required,min=3,max=100"`
	Description string `json:"description" validate:"omitempty,max=5000"`
	Price       int64  `json:"price" validate:"gte=0"` // minor units
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	Published   bool   `json:"published"`
	CourseIDs   []uint `json:"course_ids" validate:"required,min=1"`
}

// UpdateBundleRequest represents the request body for updating a bundle
type UpdateBundleRequest struct {
	Title       string  `json:"title" validate:"omitempty,min=3,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
	Published   *bool   `json:"published"`
	CourseIDs   []uint  `json:"course_ids,omitempty"` // replaces the full set when present
}

// ListBundles handles GET /api/v1/bundles
func (h *BundleHandler) ListBundles(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := h.db.Model(&model.Bundle{}).Where("published = ?", true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count bundles")
	}

	var bundles []model.Bundle
	if err := query.Preload("Courses.Course").
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&bundles).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch bundles")
	}

	return response.Paginated(c, bundles, response.CalculatePagination(page, limit, total))
}

// GetBundle handles GET /api/v1/bundles/:id
func (h *BundleHandler) GetBundle(c *fiber.Ctx) error {
	id := c.Params("id")

	var bundle model.Bundle
	if err := h.db.Preload("Courses.Course").
		First(&bundle, "id = ? AND published = ?", id, true).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Bundle not found")
		}
		return response.InternalServerError(c, "Failed to fetch bundle")
	}

	return response.Success(c, bundle)
}

// CreateBundle handles POST /api/v1/admin/bundles
func (h *BundleHandler) CreateBundle(c *fiber.Ctx) error {
	var req CreateBundleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	req.Title = validation.SanitizeString(req.Title)
	req.Slug = validation.SanitizeString(req.Slug)
	if req.Currency == "" {
		req.Currency = "THB"
	}

	var existing model.Bundle
	if err := h.db.Where("slug = ?", req.Slug).First(&existing).Error; err == nil {
		return response.Conflict(c, "Bundle with this slug already exists")
	}

	var courseCount int64
	if err := h.db.Model(&model.Course{}).Where("id IN ?", req.CourseIDs).Count(&courseCount).Error; err != nil {
		return response.InternalServerError(c, "Failed to verify courses")
	}
	if int(courseCount) != len(req.CourseIDs) {
		return response.BadRequest(c, "One or more courses do not exist")
	}

	bundle := model.Bundle{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: validation.SanitizeString(req.Description),
		Price:       req.Price,
		Currency:    req.Currency,
		Published:   req.Published,
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&bundle).Error; err != nil {
			return err
		}
		return replaceCourses(tx, bundle.ID, req.CourseIDs)
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to create bundle")
	}

	h.db.Preload("Courses.Course").First(&bundle, bundle.ID)
	return response.Created(c, bundle)
}

// UpdateBundle handles PUT /api/v1/admin/bundles/:id
func (h *BundleHandler) UpdateBundle(c *fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateBundleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var bundle model.Bundle
	if err := h.db.First(&bundle, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Bundle not found")
		}
		return response.InternalServerError(c, "Failed to fetch bundle")
	}

	if req.Title != "" {
		bundle.Title = validation.SanitizeString(req.Title)
	}
	if req.Description != nil {
		bundle.Description = validation.SanitizeString(*req.Description)
	}
	if req.Price != nil {
		bundle.Price = *req.Price
	}
	if req.Published != nil {
		bundle.Published = *req.Published
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&bundle).Error; err != nil {
			return err
		}
		if req.CourseIDs != nil {
			if err := tx.Where("bundle_id = ?", bundle.ID).Delete(&model.BundleCourse{}).Error; err != nil {
				return err
			}
			return replaceCourses(tx, bundle.ID, req.CourseIDs)
		}
		return nil
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to update bundle")
	}

	h.catalog.InvalidateItem(c.Context(), services.ItemRef{Kind: services.ItemKindBundle, ID: bundle.ID})

	h.db.Preload("Courses.Course").First(&bundle, bundle.ID)
	return response.Success(c, bundle)
}

// DeleteBundle handles DELETE /api/v1/admin/bundles/:id
func (h *BundleHandler) DeleteBundle(c *fiber.Ctx) error {
	id := c.Params("id")

	var bundle model.Bundle
	if err := h.db.First(&bundle, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Bundle not found")
		}
		return response.InternalServerError(c, "Failed to fetch bundle")
	}

	if err := h.db.Delete(&bundle).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete bundle")
	}

	h.catalog.InvalidateItem(c.Context(), services.ItemRef{Kind: services.ItemKindBundle, ID: bundle.ID})

	return response.NoContent(c)
}

func replaceCourses(tx *gorm.DB, bundleID uint, courseIDs []uint) error {
	for i, courseID := range courseIDs {
		link := model.BundleCourse{
			BundleID: bundleID,
			CourseID: courseID,
			Position: i,
		}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}
