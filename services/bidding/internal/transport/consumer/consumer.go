package consumer

import (
	"context"

	"github.com/sakashimaa/go-auction-next/pkg/broker"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/dispatch"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/service"
	"go.uber.org/zap"
)

const groupID = "bidding-service-group"

type Consumer struct {
	projection *service.AuctionProjection
	registry   *dispatch.Registry
	logger     *zap.Logger
}

func NewConsumer(projection *service.AuctionProjection, logger *zap.Logger) *Consumer {
	c := &Consumer{
		projection: projection,
		logger:     logger,
	}

	c.registry = dispatch.NewRegistry(service.Source, logger).
		Register(events.AuctionCreatedEvent, c.handleAuctionCreated).
		Register(events.AuctionDeletedEvent, c.handleAuctionDeleted)

	return c
}

func (c *Consumer) Start(ctx context.Context, cfg config.Broker) error {
	group := cfg.Kafka.GroupID
	if group == "" {
		group = groupID
	}

	mylogger.Info(ctx, c.logger, "Starting consumer", zap.String("group", group))

	return broker.Consume(ctx, cfg, group, []string{events.TopicAuctionEvents}, c.Handle, c.logger)
}

func (c *Consumer) Handle(ctx context.Context, topic string, body []byte) error {
	return c.registry.Handle(ctx, topic, body)
}

func (c *Consumer) handleAuctionCreated(ctx context.Context, env events.Envelope) error {
	var event events.AuctionCreated
	if err := env.DecodePayload(&event); err != nil {
		return err
	}

	return c.projection.ApplyCreated(ctx, &event)
}

func (c *Consumer) handleAuctionDeleted(ctx context.Context, env events.Envelope) error {
	var event events.AuctionDeleted
	if err := env.DecodePayload(&event); err != nil {
		return err
	}

	return c.projection.ApplyDeleted(ctx, &event)
}
