package consumer

import (
	"context"

	"github.com/sakashimaa/go-auction-next/pkg/broker"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/dispatch"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/search/internal/service"
	"go.uber.org/zap"
)

const groupID = "search-service-group"

type Consumer struct {
	registry *dispatch.Registry
	logger   *zap.Logger
}

func NewConsumer(projector *service.Projector, faults dispatch.FaultPublisher, logger *zap.Logger) *Consumer {
	registry := dispatch.NewRegistry(service.Source, logger).WithFaults(faults)

	return &Consumer{
		registry: projector.Register(registry),
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
