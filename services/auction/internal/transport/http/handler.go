package http

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/auth"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/pkg/utils"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/service"
	"go.uber.org/zap"
)

type AuctionHandler struct {
	service  service.AuctionService
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

func NewAuctionHandler(svc service.AuctionService, logger *zap.Logger, timeout time.Duration) *AuctionHandler {
	return &AuctionHandler{
		service:  svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		timeout:  timeout,
	}
}

func RegisterRoutes(app *fiber.App, h *AuctionHandler, authMiddleware fiber.Handler) {
	api := app.Group("/api/auctions")
	api.Get("", h.List)
	api.Get("/:id", h.Get)
	api.Post("", authMiddleware, h.Create)
	api.Put("/:id", authMiddleware, h.Update)
	api.Delete("/:id", authMiddleware, h.Delete)

	internal := app.Group("/internal/auctions")
	internal.Get("/:id/summary", h.Summary)
}

func (h *AuctionHandler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

func (h *AuctionHandler) parseID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, false
	}

	return id, true
}

func (h *AuctionHandler) List(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	var updatedAfter *time.Time
	if raw := c.Query("date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "date must be RFC3339"})
		}
		updatedAfter = &t
	}

	auctions, err := h.service.ListAuctions(ctx, updatedAfter)
	if err != nil {
		mylogger.Error(ctx, h.logger, "Failed to list auctions", zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(auctions)
}

func (h *AuctionHandler) Get(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	id, ok := h.parseID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Id is invalid"})
	}

	auction, err := h.service.GetAuction(ctx, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(auction)
}

func (h *AuctionHandler) Summary(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	id, ok := h.parseID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Id is invalid"})
	}

	summary, err := h.service.GetAuctionSummary(ctx, id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(summary)
}

func (h *AuctionHandler) Create(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	var input domain.CreateAuctionInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.validate.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	if !input.AuctionEnd.After(time.Now()) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "auctionEnd must be in the future"})
	}

	auction, err := h.service.CreateAuction(ctx, auth.Username(c), &input)
	if err != nil {
		mylogger.Error(ctx, h.logger, "Failed to create auction", zap.Error(err))
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(auction)
}

func (h *AuctionHandler) Update(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	id, ok := h.parseID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Id is invalid"})
	}

	var input domain.UpdateAuctionInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.validate.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	auction, err := h.service.UpdateAuction(ctx, id, auth.Username(c), &input)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "Failed to update auction", zap.String("auction_id", id.String()), zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(auction)
}

func (h *AuctionHandler) Delete(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	id, ok := h.parseID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Id is invalid"})
	}

	if err := h.service.DeleteAuction(ctx, id, auth.Username(c)); err != nil {
		mylogger.Warn(ctx, h.logger, "Failed to delete auction", zap.String("auction_id", id.String()), zap.Error(err))
		return writeError(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
