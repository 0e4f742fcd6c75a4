package reconciliation

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ohmiler/milerdev-sub000/handlers"
	"github.com/ohmiler/milerdev-sub000/model"
	"github.com/ohmiler/milerdev-sub000/services"
	"github.com/ohmiler/milerdev-sub000/utils/middleware"
	"github.com/ohmiler/milerdev-sub000/utils/response"
)

// ReconciliationHandler exposes the admin payment triage endpoints
type ReconciliationHandler struct {
	reconciliation *services.ReconciliationService
	staleWindow    time.Duration
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(reconciliation *services.ReconciliationService, staleWindow time.Duration) *ReconciliationHandler {
	if staleWindow <= 0 {
		staleWindow = 24 * time.Hour
	}
	return &ReconciliationHandler{
		reconciliation: reconciliation,
		staleWindow:    staleWindow,
	}
}

// DecisionRequest carries an operator's note for approve/reject/refund
type DecisionRequest struct {
	Note string `json:"note,omitempty"`
}

// BulkFailRequest lists payment IDs to mark failed in one sweep
type BulkFailRequest struct {
	PaymentIDs []string `json:"payment_ids" validate:"required,min=1"`
}

var validBuckets = map[model.PaymentStatus]bool{
	model.PaymentStatusPending:   true,
	model.PaymentStatusVerifying: true,
	model.PaymentStatusCompleted: true,
	model.PaymentStatusFailed:    true,
	model.PaymentStatusRefunded:  true,
}

// List handles GET /admin/reconciliation
func (h *ReconciliationHandler) List(c *fiber.Ctx) error {
	bucket := model.PaymentStatus(c.Query("status", string(model.PaymentStatusVerifying)))
	if !validBuckets[bucket] {
		return response.BadRequest(c, "Invalid status bucket")
	}

	daysBack, _ := strconv.Atoi(c.Query("days_back", "7"))
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}

	rows, total, err := h.reconciliation.List(c.Context(), bucket, daysBack, limit, (page-1)*limit)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Paginated(c, rows, response.CalculatePagination(page, limit, total))
}

// Summary handles GET /admin/reconciliation/summary
func (h *ReconciliationHandler) Summary(c *fiber.Ctx) error {
	daysBack, _ := strconv.Atoi(c.Query("days_back", "7"))

	counts, err := h.reconciliation.Summary(c.Context(), daysBack)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, fiber.Map{
		"days_back": services.ClampLookBack(daysBack),
		"counts":    counts,
	})
}

// Export handles GET /admin/reconciliation/export, streaming a CSV snapshot
func (h *ReconciliationHandler) Export(c *fiber.Ctx) error {
	bucket := model.PaymentStatus(c.Query("status", string(model.PaymentStatusVerifying)))
	if !validBuckets[bucket] {
		return response.BadRequest(c, "Invalid status bucket")
	}
	daysBack, _ := strconv.Atoi(c.Query("days_back", "7"))

	var buf bytes.Buffer
	if err := h.reconciliation.ExportCSV(c.Context(), bucket, daysBack, &buf); err != nil {
		return handlers.ServiceError(c, err)
	}

	filename := fmt.Sprintf("reconciliation_%s_%s.csv", bucket, time.Now().Format("2006-01-02"))
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(buf.Bytes())
}

// Approve handles POST /admin/reconciliation/:id/approve
func (h *ReconciliationHandler) Approve(c *fiber.Ctx) error {
	actorID, paymentID, note, ok := h.decisionParams(c)
	if !ok {
		return nil
	}

	payment, granted, err := h.reconciliation.Approve(c.Context(), paymentID, actorID, note)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, fiber.Map{
		"payment": payment,
		"granted": granted,
	})
}

// Reject handles POST /admin/reconciliation/:id/reject
func (h *ReconciliationHandler) Reject(c *fiber.Ctx) error {
	actorID, paymentID, note, ok := h.decisionParams(c)
	if !ok {
		return nil
	}

	payment, err := h.reconciliation.Reject(c.Context(), paymentID, actorID, note)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, payment)
}

// Refund handles POST /admin/reconciliation/:id/refund
func (h *ReconciliationHandler) Refund(c *fiber.Ctx) error {
	actorID, paymentID, note, ok := h.decisionParams(c)
	if !ok {
		return nil
	}

	payment, err := h.reconciliation.Refund(c.Context(), paymentID, actorID, note)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, payment)
}

// BulkFail handles POST /admin/reconciliation/bulk-fail
func (h *ReconciliationHandler) BulkFail(c *fiber.Ctx) error {
	actorID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	var req BulkFailRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if len(req.PaymentIDs) == 0 {
		return response.BadRequest(c, "payment_ids is required")
	}
	if len(req.PaymentIDs) > 100 {
		return response.BadRequest(c, "Cannot process more than 100 payments at once")
	}

	ids := make([]uuid.UUID, 0, len(req.PaymentIDs))
	for _, raw := range req.PaymentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return response.BadRequest(c, "Invalid payment ID: "+raw)
		}
		ids = append(ids, id)
	}

	outcomes := h.reconciliation.BulkMarkFailed(c.Context(), ids, actorID)
	return response.Success(c, fiber.Map{"results": outcomes})
}

// ExpireStale handles POST /admin/reconciliation/expire-stale
func (h *ReconciliationHandler) ExpireStale(c *fiber.Ctx) error {
	actorID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	window := h.staleWindow
	if hours, err := strconv.Atoi(c.Query("older_than_hours", "")); err == nil && hours > 0 {
		window = time.Duration(hours) * time.Hour
	}

	expired, err := h.reconciliation.ExpireStale(c.Context(), window, actorID)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, fiber.Map{
		"expired":          expired,
		"older_than_hours": int(window.Hours()),
	})
}

// decisionParams pulls the actor, target payment and optional note out of an
// approve/reject/refund request. When it returns ok=false the error response
// has already been written.
func (h *ReconciliationHandler) decisionParams(c *fiber.Ctx) (actorID uint, paymentID uuid.UUID, note string, ok bool) {
	actorID, ok = middleware.GetUserID(c)
	if !ok {
		_ = response.Unauthorized(c, "Authentication required")
		return 0, uuid.Nil, "", false
	}

	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = response.BadRequest(c, "Invalid payment ID")
		return 0, uuid.Nil, "", false
	}

	var req DecisionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			_ = response.BadRequest(c, "Invalid request body")
			return 0, uuid.Nil, "", false
		}
	}
	return actorID, paymentID, req.Note, true
}
