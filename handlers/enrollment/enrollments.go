package enrollment

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ohmiler/milerdev-sub000/handlers"
	"github.com/ohmiler/milerdev-sub000/services"
	"github.com/ohmiler/milerdev-sub000/utils/middleware"
	"github.com/ohmiler/milerdev-sub000/utils/response"
)

// EnrollmentHandler handles enrollment-related requests
type EnrollmentHandler struct {
	enrollments *services.EnrollmentService
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(enrollments *services.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// ListMine handles GET /api/v1/enrollments/my
func (h *EnrollmentHandler) ListMine(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}

	enrollments, err := h.enrollments.ListForUser(c.Context(), userID)
	if err != nil {
		return handlers.ServiceError(c, err)
	}
	return response.Success(c, enrollments)
}
