package consumer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/broker"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/dispatch"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/service"
	"go.uber.org/zap"
)

const groupID = "auction-service-group"

type Consumer struct {
	service  service.AuctionService
	faults   *service.FaultHandler
	registry *dispatch.Registry
	logger   *zap.Logger
}

func NewConsumer(svc service.AuctionService, faults *service.FaultHandler, logger *zap.Logger) *Consumer {
	c := &Consumer{
		service: svc,
		faults:  faults,
		logger:  logger,
	}

	c.registry = dispatch.NewRegistry(service.Source, logger).
		Register(events.BidPlacedEvent, c.handleBidPlaced).
		Register(events.AuctionFinishedEvent, c.handleAuctionFinished).
		Register(events.FaultEvent, c.handleFault)

	return c
}

func (c *Consumer) Start(ctx context.Context, cfg config.Broker) error {
	group := cfg.Kafka.GroupID
	if group == "" {
		group = groupID
	}

	mylogger.Info(ctx, c.logger, "Starting consumer", zap.String("group", group))

	return broker.Consume(
		ctx,
		cfg,
		group,
		[]string{events.TopicBidEvents, events.TopicFaults},
		c.Handle,
		c.logger,
	)
}

// Handle processes one raw broker message.
func (c *Consumer) Handle(ctx context.Context, topic string, body []byte) error {
	return c.registry.Handle(ctx, topic, body)
}

func (c *Consumer) handleBidPlaced(ctx context.Context, env events.Envelope) error {
	var event events.BidPlaced
	if err := env.DecodePayload(&event); err != nil {
		return err
	}

	if !events.CountsTowardHighBid(event.BidStatus) {
		return nil
	}

	auctionID, err := uuid.Parse(event.AuctionID)
	if err != nil {
		return fmt.Errorf("%w: auction id %q", events.ErrPoisonMessage, event.AuctionID)
	}

	return c.service.ApplyHighBid(ctx, auctionID, event.Amount)
}

func (c *Consumer) handleAuctionFinished(ctx context.Context, env events.Envelope) error {
	var event events.AuctionFinished
	if err := env.DecodePayload(&event); err != nil {
		return err
	}

	return c.service.FinalizeAuction(ctx, &event)
}

func (c *Consumer) handleFault(ctx context.Context, env events.Envelope) error {
	var fault events.Fault
	if err := env.DecodePayload(&fault); err != nil {
		return err
	}

	return c.faults.Handle(ctx, &fault)
}
