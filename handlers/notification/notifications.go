package notification

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/ohmiler/milerdev-sub000/handlers"
	"github.com/ohmiler/milerdev-sub000/services"
	"github.com/ohmiler/milerdev-sub000/utils/middleware"
	"github.com/ohmiler/milerdev-sub000/utils/response"
)

// NotificationHandler handles user notification requests
type NotificationHandler struct {
	notifications *services.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List handles GET /api/v1/notifications
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	unreadOnly := c.Query("unread", "") == "true"
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	notifications, total, err := h.notifications.ListNotifications(c.Context(), userID, unreadOnly, limit, (page-1)*limit)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Paginated(c, notifications, response.CalculatePagination(page, limit, total))
}

// MarkRead handles POST /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	notificationID, err := strconv.Atoi(c.Params("id"))
	if err != nil || notificationID < 1 {
		return response.BadRequest(c, "Invalid notification ID")
	}

	if err := h.notifications.MarkRead(c.Context(), userID, uint(notificationID)); err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.NoContent(c)
}
