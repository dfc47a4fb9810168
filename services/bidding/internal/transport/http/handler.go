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
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/service"
	"go.uber.org/zap"
)

type BidHandler struct {
	service  service.BidService
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

func NewBidHandler(svc service.BidService, logger *zap.Logger, timeout time.Duration) *BidHandler {
	return &BidHandler{
		service:  svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		timeout:  timeout,
	}
}

func RegisterRoutes(app *fiber.App, h *BidHandler, authMiddleware fiber.Handler) {
	api := app.Group("/api/bids")
	api.Post("", authMiddleware, h.PlaceBid)
	api.Get("/:auctionId", h.ListForAuction)
}

func (h *BidHandler) PlaceBid(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	var input domain.PlaceBidInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := h.validate.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	bid, err := h.service.PlaceBid(ctx, uuid.MustParse(input.AuctionID), auth.Username(c), input.Amount)
	if err != nil {
		mylogger.Warn(ctx, h.logger, "place bid failed",
			zap.String("auction_id", input.AuctionID),
			zap.Error(err),
		)
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(bid)
}

func (h *BidHandler) ListForAuction(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	auctionID, err := uuid.Parse(c.Params("auctionId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Id is invalid"})
	}

	bids, err := h.service.GetBidsForAuction(ctx, auctionID)
	if err != nil {
		mylogger.Error(ctx, h.logger, "Failed to list bids", zap.Error(err))
		return writeError(c, err)
	}

	return c.JSON(bids)
}
