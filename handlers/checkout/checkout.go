package checkout

import (
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ohmiler/milerdev-sub000/handlers"
	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/services"
	"github.com/ohmiler/milerdev-sub000/utils/middleware"
	"github.com/ohmiler/milerdev-sub000/utils/response"
)

// maxSlipSize caps uploaded slip images at 8MB.
const maxSlipSize = 8 << 20

// CheckoutHandler handles checkout and payment-facing student requests
type CheckoutHandler struct {
	payments *services.PaymentService
	pricing  *services.PricingService
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(payments *services.PaymentService, pricing *services.PricingService) *CheckoutHandler {
	return &CheckoutHandler{
		payments: payments,
		pricing:  pricing,
	}
}

// CheckoutRequest represents a checkout request
type CheckoutRequest struct {
	ItemType   string `json:"item_type" validate:"required,oneof=course bundle"`
	ItemID     uint   `json:"item_id" validate:"required"`
	Method     string `json:"method" validate:"required,oneof=card_gateway bank_transfer"`
	CouponCode string `json:"coupon_code,omitempty"`
}

// QuoteRequest represents a price preview request
type QuoteRequest struct {
	ItemType   string `json:"item_type" validate:"required,oneof=course bundle"`
	ItemID     uint   `json:"item_id" validate:"required"`
	CouponCode string `json:"coupon_code,omitempty"`
}

// Quote handles POST /checkout/quote, pricing an item without opening a payment
func (h *CheckoutHandler) Quote(c *fiber.Ctx) error {
	var req QuoteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.ItemID == 0 || (req.ItemType != "course" && req.ItemType != "bundle") {
		return response.BadRequest(c, "item_type must be 'course' or 'bundle' and item_id is required")
	}

	quote, err := h.pricing.Resolve(c.Context(), services.ItemRef{Kind: services.ItemKind(req.ItemType), ID: req.ItemID}, req.CouponCode)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, quote)
}

// Create handles POST /checkout
func (h *CheckoutHandler) Create(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.ItemID == 0 || (req.ItemType != "course" && req.ItemType != "bundle") {
		return response.BadRequest(c, "item_type must be 'course' or 'bundle' and item_id is required")
	}

	result, err := h.payments.CreatePayment(c.Context(), services.CreatePaymentRequest{
		UserID:        user.ID,
		Item:          services.ItemRef{Kind: services.ItemKind(req.ItemType), ID: req.ItemID},
		Method:        model.PaymentMethod(req.Method),
		CouponCode:    req.CouponCode,
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
	})
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Created(c, result)
}

// UploadSlip handles POST /payments/:id/slip
func (h *CheckoutHandler) UploadSlip(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid payment ID")
	}

	fileHeader, err := c.FormFile("slip")
	if err != nil {
		return response.BadRequest(c, "Slip image file is required")
	}
	if fileHeader.Size > maxSlipSize {
		return response.BadRequest(c, "Slip image must be smaller than 8MB")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.BadRequest(c, "Failed to read slip image")
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		return response.BadRequest(c, "Failed to read slip image")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	payment, err := h.payments.AttachSlip(c.Context(), paymentID, userID, image, contentType)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, payment)
}

// Get handles GET /payments/:id
func (h *CheckoutHandler) Get(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.BadRequest(c, "Invalid payment ID")
	}

	payment, err := h.payments.GetPayment(c.Context(), paymentID)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	if payment.UserID != user.ID && !user.IsAdmin() {
		return response.NotFound(c, "resource not found")
	}
	return response.Success(c, payment)
}

// ListMine handles GET /payments/my
func (h *CheckoutHandler) ListMine(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	payments, total, err := h.payments.ListForUser(c.Context(), userID, limit, (page-1)*limit)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Paginated(c, payments, response.CalculatePagination(page, limit, total))
}
