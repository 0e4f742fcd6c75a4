package course

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/services"
	"github.com/ohmiler/milerdev-sub000/utils/response"
	"github.com/ohmiler/milerdev-sub000/utils/validation"
	"gorm.io/gorm"
)

// CourseHandler handles course-related requests
type CourseHandler struct {
	db        *gorm.DB
	catalog   *services.CatalogService
	validator *validation.Validator
}

// NewCourseHandler creates a new course handler
func NewCourseHandler(db *gorm.DB, catalog *services.CatalogService) *CourseHandler {
	return &CourseHandler{
		db:        db,
		catalog:   catalog,
		validator: validation.NewValidator(),
	}
}

// CreateCourseRequest represents the request body for creating a course
type CreateCourseRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=255"`
	Slug        string `json:"slug" validate:"required,min=3,max=100"`
	Description string `json:"description" validate:"omitempty,max=5000"`
	Price       int64  `json:"price" validate:"gte=0"` // minor units
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	CoverURL    string `json:"cover_url" validate:"omitempty,url"`
	Published   bool   `json:"published"`
}

// UpdateCourseRequest represents the request body for updating a course
type UpdateCourseRequest struct {
	Title       string  `json:"title" validate:"omitempty,min=3,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
	CoverURL    *string `json:"cover_url" validate:"omitempty,url"`
	Published   *bool   `json:"published"`
}

// ListCourses handles GET /api/v1/courses
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	search := c.Query("search", "")
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	// Only published courses are visible to the storefront
	query := h.db.Model(&model.Course{}).Where("published = ?", true)

	if search != "" {
		query = query.Where("title ILIKE ? OR description ILIKE ?",
			"%"+search+"%", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count courses")
	}

	var courses []model.Course
	if err := query.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&courses).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	return response.Paginated(c, courses, response.CalculatePagination(page, limit, total))
}

// GetCourse handles GET /api/v1/courses/:id
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	id := c.Params("id")

	var course model.Course
	if err := h.db.First(&course, "id = ? AND published = ?", id, true).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	return response.Success(c, course)
}

// CreateCourse handles POST /api/v1/admin/courses
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	var req CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	req.Title = validation.SanitizeString(req.Title)
	req.Slug = validation.SanitizeString(req.Slug)
	req.Description = validation.SanitizeString(req.Description)
	if req.Currency == "" {
		req.Currency = "THB"
	}

	var existing model.Course
	if err := h.db.Where("slug = ?", req.Slug).First(&existing).Error; err == nil {
		return response.Conflict(c, "Course with this slug already exists")
	}

	course := model.Course{
		Title:       req.Title,
		Slug:        req.Slug,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		CoverURL:    req.CoverURL,
		Published:   req.Published,
	}

	if err := h.db.Create(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to create course")
	}

	return response.Created(c, course)
}

// UpdateCourse handles PUT /api/v1/admin/courses/:id
func (h *CourseHandler) UpdateCourse(c *fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	if req.Title != "" {
		course.Title = validation.SanitizeString(req.Title)
	}
	if req.Description != nil {
		course.Description = validation.SanitizeString(*req.Description)
	}
	if req.Price != nil {
		course.Price = *req.Price
	}
	if req.CoverURL != nil {
		course.CoverURL = *req.CoverURL
	}
	if req.Published != nil {
		course.Published = *req.Published
	}

	if err := h.db.Save(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to update course")
	}

	// Drop the cached price so the next checkout sees this edit
	h.catalog.InvalidateItem(c.Context(), services.ItemRef{Kind: services.ItemKindCourse, ID: course.ID})

	return response.Success(c, course)
}

// DeleteCourse handles DELETE /api/v1/admin/courses/:id
func (h *CourseHandler) DeleteCourse(c *fiber.Ctx) error {
	id := c.Params("id")

	var course model.Course
	if err := h.db.First(&course, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	if err := h.db.Delete(&course).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete course")
	}

	h.catalog.InvalidateItem(c.Context(), services.ItemRef{Kind: services.ItemKindCourse, ID: course.ID})

	return response.NoContent(c)
}
