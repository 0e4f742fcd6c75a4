package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/ohmiler/milerdev-sub000/services"
	"github.com/ohmiler/milerdev-sub000/utils/response"
)

// ServiceError maps a service-layer error onto the HTTP response envelope.
// Upstream failures are logged with their cause but returned as a generic
// 502 so provider details never leak to clients.
func ServiceError(c *fiber.Ctx, err error) error {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		return response.BadRequest(c, ve.Error())
	}

	switch {
	case errors.Is(err, services.ErrNotFound):
		return response.NotFound(c, "resource not found")
	case errors.Is(err, services.ErrConflict):
		return response.Conflict(c, "payment was already processed")
	case errors.Is(err, services.ErrCouponInvalid):
		return response.BadRequest(c, "coupon is invalid or expired")
	case errors.Is(err, services.ErrCouponNotApplicable):
		return response.BadRequest(c, "coupon does not apply to this item")
	case services.IsExternalServiceError(err):
		log.Printf("[HANDLER] Upstream failure: %v", err)
		return response.BadGateway(c, "payment provider is unavailable, please try again later")
	default:
		log.Printf("[HANDLER] Unexpected error: %v", err)
		return response.InternalServerError(c, "something went wrong")
	}
}
