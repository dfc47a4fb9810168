package consumer

import (
	"context"

	"github.com/sakashimaa/go-auction-next/pkg/broker"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/dispatch"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/notification/internal/service"
	"go.uber.org/zap"
)

const groupID = "notification-service-group"

type Consumer struct {
	registry *dispatch.Registry
	logger   *zap.Logger
}

func NewConsumer(svc *service.NotificationService, logger *zap.Logger) *Consumer {
	registry := dispatch.NewRegistry(service.Source, logger).
		Register(events.AuctionCreatedEvent, svc.HandleAuctionCreated).
		Register(events.BidPlacedEvent, svc.HandleBidPlaced).
		Register(events.AuctionFinishedEvent, svc.HandleAuctionFinished)

	return &Consumer{
		registry: registry,
		logger:   logger,
	}
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
		[]string{events.TopicAuctionEvents, events.TopicBidEvents},
		c.Handle,
		c.logger,
	)
}

func (c *Consumer) Handle(ctx context.Context, topic string, body []byte) error {
	return c.registry.Handle(ctx, topic, body)
}
