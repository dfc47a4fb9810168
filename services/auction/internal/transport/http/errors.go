package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/service"
)

func mapErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrAuctionNotLive),
		errors.Is(err, service.ErrAuctionHasBids):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func writeError(c *fiber.Ctx, err error) error {
	status := mapErrorStatus(err)

	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "internal error"
	}

	return c.Status(status).JSON(fiber.Map{"error": msg})
}
