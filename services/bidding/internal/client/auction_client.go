package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/pkg/utils"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/domain"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

var ErrAuctionNotFound = errors.New("auction unknown to auction service")

type AuctionClient interface {
	GetAuctionSummary(ctx context.Context, id uuid.UUID) (*domain.AuctionSummary, error)
}

type auctionClient struct {
	baseURL    string
	timeout    time.Duration
	maxRetries uint64
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewAuctionClient queries the auction service summary endpoint through a
// circuit breaker. A 404 does not count against the breaker.
func NewAuctionClient(cfg config.Services, logger *zap.Logger) AuctionClient {
	return &auctionClient{
		baseURL:    strings.TrimRight(cfg.AuctionURL, "/"),
		timeout:    cfg.Timeout,
		maxRetries: 2,
		cb: utils.NewBreaker("auction-service", logger, func(err error) bool {
			return err == nil || errors.Is(err, ErrAuctionNotFound)
		}),
		logger: logger,
	}
}

func (c *auctionClient) GetAuctionSummary(ctx context.Context, id uuid.UUID) (*domain.AuctionSummary, error) {
	operation := func() (*domain.AuctionSummary, error) {
		summary, err := utils.ExecuteWithBreaker(c.cb, func() (*domain.AuctionSummary, error) {
			return c.fetch(ctx, id)
		})

		switch {
		case err == nil:
			return summary, nil
		case errors.Is(err, ErrAuctionNotFound),
			errors.Is(err, gobreaker.ErrOpenState),
			errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, backoff.Permanent(err)
		default:
			mylogger.Warn(ctx, c.logger, "Auction summary request failed, retrying",
				zap.String("auction_id", id.String()),
				zap.Error(err),
			)
			return nil, err
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 3 * c.timeout

	return backoff.RetryWithData(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx))
}

func (c *auctionClient) fetch(ctx context.Context, id uuid.UUID) (*domain.AuctionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agent := fiber.Get(fmt.Sprintf("%s/internal/auctions/%s/summary", c.baseURL, id)).
		Timeout(c.timeout)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		agent.Set(k, v)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("auction summary request: %w", errors.Join(errs...))
	}

	switch code {
	case fiber.StatusOK:
	case fiber.StatusNotFound:
		return nil, ErrAuctionNotFound
	default:
		return nil, fmt.Errorf("auction summary: unexpected status %d", code)
	}

	var summary domain.AuctionSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("decode auction summary: %w", err)
	}

	return &summary, nil
}
