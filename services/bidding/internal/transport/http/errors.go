package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/service"
	"github.com/sony/gobreaker"
)

func mapErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrSelfBid),
		errors.Is(err, service.ErrInvalidAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status := mapErrorStatus(err)

	msg := err.Error()
	switch status {
	case fiber.StatusInternalServerError:
		msg = "internal error"
	case fiber.StatusServiceUnavailable:
		msg = "Service temporarily unavailable"
	}

	return c.Status(status).JSON(fiber.Map{"error": msg})
}
