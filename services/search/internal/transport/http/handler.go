package http

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/pkg/utils"
	"github.com/sakashimaa/go-auction-next/services/search/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/search/internal/service"
	"go.uber.org/zap"
)

type SearchHandler struct {
	service  service.SearchService
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

func NewSearchHandler(svc service.SearchService, logger *zap.Logger, timeout time.Duration) *SearchHandler {
	return &SearchHandler{
		service:  svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		timeout:  timeout,
	}
}

func RegisterRoutes(app *fiber.App, h *SearchHandler) {
	api := app.Group("/api/search")
	api.Get("", h.Search)
	api.Get("/:id", h.GetItem)
}

func (h *SearchHandler) Search(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	var params domain.SearchParams
	if err := c.QueryParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid query"})
	}

	if err := h.validate.Struct(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": utils.FormatValidationError(err)})
	}

	result, err := h.service.Search(ctx, params)
	if err != nil {
		mylogger.Error(ctx, h.logger, "Search failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return c.JSON(result)
}

func (h *SearchHandler) GetItem(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Id is invalid"})
	}

	item, err := h.service.GetItem(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}

		mylogger.Error(ctx, h.logger, "Get item failed", zap.String("item_id", id.String()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return c.JSON(item)
}
