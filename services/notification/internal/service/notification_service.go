package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	outboxUtils "github.com/sakashimaa/go-auction-next/pkg/outbox/utils"
	"github.com/sakashimaa/go-auction-next/services/notification/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/notification/internal/infrastructure/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const Source = "notification-service"

type NotificationService struct {
	fanout pubsub.Fanout
	logger *zap.Logger
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

func NewNotificationService(fanout pubsub.Fanout, logger *zap.Logger, pool *pgxpool.Pool) *NotificationService {
	return &NotificationService{
		fanout: fanout,
		logger: logger,
		pool:   pool,
		tracer: otel.Tracer("notification-service"),
	}
}

func (s *NotificationService) HandleAuctionCreated(ctx context.Context, env events.Envelope) error {
	var event events.AuctionCreated
	if err := env.DecodePayload(&event); err != nil {
		return err
	}

	return s.notify(ctx, env, event.ID)
}

func (s *NotificationService) HandleBidPlaced(ctx context.Context, env events.Envelope) error {
	var event events.BidPlaced
	if err := env.DecodePayload(&event); err != nil {
		return err
	}

	return s.notify(ctx, env, event.AuctionID)
}

func (s *NotificationService) HandleAuctionFinished(ctx context.Context, env events.Envelope) error {
	var event events.AuctionFinished
	if err := env.DecodePayload(&event); err != nil {
		return err
	}

	return s.notify(ctx, env, event.AuctionID)
}

// notify fans the event out once per (source, sequence). A republished,
// patched event carries its original's sequence and is not notified again.
func (s *NotificationService) notify(ctx context.Context, env events.Envelope, auctionID string) error {
	ctx, span := s.tracer.Start(ctx, "NotificationService.notify")
	defer span.End()

	span.SetAttributes(
		attribute.String("event.type", env.Event),
		attribute.Int64("event.id", env.EventID),
		attribute.String("auction_id", auctionID),
	)

	if env.EventID == 0 {
		return fmt.Errorf("%w: %s without event id", events.ErrPoisonMessage, env.Event)
	}

	seq := env.Sequence()
	n := domain.Notification{
		Type:       env.Event,
		AuctionID:  auctionID,
		EventID:    seq,
		Source:     env.Source,
		OccurredAt: env.OccurredAt,
		Data:       env.Payload,
	}

	return outboxUtils.ProcessWithDeduplication(ctx, s.pool, s.logger, env.Source, seq, func(tx pgx.Tx) error {
		return s.fanout.Publish(ctx, n)
	})
}
