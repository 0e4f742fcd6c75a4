package payment

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/ohmiler/milerdev-sub000/handlers"
	"github.com/ohmiler/milerdev-sub000/services"
	"github.com/ohmiler/milerdev-sub000/services/gateway"
	"github.com/ohmiler/milerdev-sub000/utils/response"
)

// WebhookHandler receives payment gateway callbacks
type WebhookHandler struct {
	payments *services.PaymentService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(payments *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

// HandleGatewayNotification handles POST /payments/webhook/gateway.
// The gateway retries on any non-2xx status, so every authenticated
// notification is acknowledged with 200 even when it changes nothing.
func (h *WebhookHandler) HandleGatewayNotification(c *fiber.Ctx) error {
	var n gateway.Notification
	if err := c.BodyParser(&n); err != nil {
		return response.BadRequest(c, "Invalid notification body")
	}

	ack, err := h.payments.HandleGatewayCallback(c.Context(), n)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			log.Printf("[WEBHOOK] Rejected notification with bad signature for order %s", n.OrderID)
			return response.Unauthorized(c, "Invalid signature")
		}
		return handlers.ServiceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(ack)
}
