package coupon

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/utils/response"
	"github.com/ohmiler/milerdev-sub000/utils/validation"
	"gorm.io/gorm"
)

// CouponHandler handles coupon administration requests
type CouponHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(db *gorm.DB) *CouponHandler {
	return &CouponHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// CreateCouponRequest represents the request body for creating a coupon
type CreateCouponRequest struct {
	Code           string     `json:"code" validate:"required,min=3,max=50"`
	DiscountKind   string     `json:"discount_kind" validate:"required,oneof=percent fixed"`
	DiscountValue  int64      `json:"discount_value" validate:"required,gte=1"`
	MaxRedemptions *int       `json:"max_redemptions,omitempty" validate:"omitempty,gte=1"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
	CourseID       *uint      `json:"course_id,omitempty"`
}

// UpdateCouponRequest represents the request body for updating a coupon.
// The code and discount are immutable after creation; only the window and
// the redemption cap can move.
type UpdateCouponRequest struct {
	MaxRedemptions *int       `json:"max_redemptions,omitempty" validate:"omitempty,gte=1"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
}

// ListCoupons handles GET /api/v1/admin/coupons
func (h *CouponHandler) ListCoupons(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := h.db.Model(&model.Coupon{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count coupons")
	}

	var coupons []model.Coupon
	if err := query.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&coupons).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch coupons")
	}

	return response.Paginated(c, coupons, response.CalculatePagination(page, limit, total))
}

// GetCoupon handles GET /api/v1/admin/coupons/:id
func (h *CouponHandler) GetCoupon(c *fiber.Ctx) error {
	id := c.Params("id")

	var coupon model.Coupon
	if err := h.db.First(&coupon, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Coupon not found")
		}
		return response.InternalServerError(c, "Failed to fetch coupon")
	}

	return response.Success(c, coupon)
}

// CreateCoupon handles POST /api/v1/admin/coupons
func (h *CouponHandler) CreateCoupon(c *fiber.Ctx) error {
	var req CreateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	kind := model.CouponDiscountKind(req.DiscountKind)
	if kind == model.CouponDiscountPercent && req.DiscountValue > 100 {
		return response.BadRequest(c, "Percent discount cannot exceed 100")
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && req.ValidUntil.Before(*req.ValidFrom) {
		return response.BadRequest(c, "valid_until must be after valid_from")
	}

	code := model.NormalizeCouponCode(req.Code)

	var existing model.Coupon
	if err := h.db.Where("code = ?", code).First(&existing).Error; err == nil {
		return response.Conflict(c, "Coupon with this code already exists")
	}

	if req.CourseID != nil {
		var course model.Course
		if err := h.db.First(&course, *req.CourseID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return response.NotFound(c, "Course not found")
			}
			return response.InternalServerError(c, "Failed to verify course")
		}
	}

	coupon := model.Coupon{
		Code:           code,
		DiscountKind:   kind,
		DiscountValue:  req.DiscountValue,
		MaxRedemptions: req.MaxRedemptions,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
		CourseID:       req.CourseID,
	}

	if err := h.db.Create(&coupon).Error; err != nil {
		return response.InternalServerError(c, "Failed to create coupon")
	}

	return response.Created(c, coupon)
}

// UpdateCoupon handles PUT /api/v1/admin/coupons/:id
func (h *CouponHandler) UpdateCoupon(c *fiber.Ctx) error {
	id := c.Params("id")

	var req UpdateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var coupon model.Coupon
	if err := h.db.First(&coupon, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Coupon not found")
		}
		return response.InternalServerError(c, "Failed to fetch coupon")
	}

	if req.MaxRedemptions != nil {
		if *req.MaxRedemptions < coupon.RedeemedCount {
			return response.BadRequest(c, "max_redemptions cannot drop below the redeemed count")
		}
		coupon.MaxRedemptions = req.MaxRedemptions
	}
	if req.ValidFrom != nil {
		coupon.ValidFrom = req.ValidFrom
	}
	if req.ValidUntil != nil {
		coupon.ValidUntil = req.ValidUntil
	}

	if err := h.db.Save(&coupon).Error; err != nil {
		return response.InternalServerError(c, "Failed to update coupon")
	}

	return response.Success(c, coupon)
}

// DeleteCoupon handles DELETE /api/v1/admin/coupons/:id
func (h *CouponHandler) DeleteCoupon(c *fiber.Ctx) error {
	id := c.Params("id")

	var coupon model.Coupon
	if err := h.db.First(&coupon, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Coupon not found")
		}
		return response.InternalServerError(c, "Failed to fetch coupon")
	}

	if err := h.db.Delete(&coupon).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete coupon")
	}

	return response.NoContent(c)
}
