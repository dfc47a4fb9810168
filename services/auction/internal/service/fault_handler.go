package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/go-auction-next/pkg/outbox/domain"
	outboxUtils "github.com/sakashimaa/go-auction-next/pkg/outbox/utils"
	"github.com/sakashimaa/go-auction-next/pkg/outbox/worker"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FaultHandler repairs events that a consumer rejected as recoverable and
// republishes them through the outbox, once per failed event.
type FaultHandler struct {
	auctionRepo repository.AuctionRepository
	outboxRepo  worker.OutboxRepository
	pool        *pgxpool.Pool
	logger      *zap.Logger
	tracer      trace.Tracer
	outcomes    *prometheus.CounterVec
}

func NewFaultHandler(
	auctionRepo repository.AuctionRepository,
	outboxRepo worker.OutboxRepository,
	pool *pgxpool.Pool,
	logger *zap.Logger,
) *FaultHandler {
	return &FaultHandler{
		auctionRepo: auctionRepo,
		outboxRepo:  outboxRepo,
		pool:        pool,
		logger:      logger,
		tracer:      otel.Tracer("auction-service/fault-handler"),
	}
}

func (h *FaultHandler) WithMetrics(reg prometheus.Registerer) *FaultHandler {
	h.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_faults_handled_total",
		Help: "Faults received by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(h.outcomes)

	return h
}

func (h *FaultHandler) Handle(ctx context.Context, fault *events.Fault) error {
	ctx, span := h.tracer.Start(ctx, "FaultHandler.Handle")
	defer span.End()

	failed := fault.FailedEvent

	span.SetAttributes(
		attribute.String("fault.class", fault.ErrorClass),
		attribute.String("fault.consumer", fault.Consumer),
		attribute.String("event.type", failed.Event),
		attribute.Int64("event.id", failed.EventID),
	)

	fields := []zap.Field{
		zap.String("error_class", fault.ErrorClass),
		zap.String("consumer", fault.Consumer),
		zap.String("event_type", failed.Event),
		zap.Int64("event_id", failed.EventID),
		zap.String("reason", fault.Message),
	}

	if fault.ErrorClass != events.FaultClassRecoverable || failed.Event != events.AuctionCreatedEvent {
		h.count("ignored")
		mylogger.Warn(ctx, h.logger, "Fault cannot be repaired, logging only", fields...)
		return nil
	}

	if failed.Redelivery > 0 {
		h.count("rejected_after_patch")
		mylogger.Error(ctx, h.logger, "Patched event rejected again, giving up", fields...)
		return nil
	}

	var created events.AuctionCreated
	if err := failed.DecodePayload(&created); err != nil {
		h.count("ignored")
		mylogger.Error(ctx, h.logger, "Fault carries unreadable payload", append(fields, zap.Error(err))...)
		return nil
	}

	patched, changed := PatchAuctionCreated(created)
	if !changed {
		h.count("unpatchable")
		mylogger.Warn(ctx, h.logger, "No patch applies to rejected event", fields...)
		return nil
	}

	if err := events.ValidateAuctionCreated(&patched); err != nil {
		h.count("unpatchable")
		mylogger.Warn(ctx, h.logger, "Patched event still invalid", append(fields, zap.Error(err))...)
		return nil
	}

	env, err := events.NewEnvelope(Source, events.AuctionCreatedEvent, patched)
	if err != nil {
		return err
	}
	env.Redelivery = failed.Redelivery + 1
	env.OriginID = failed.Sequence()

	err = outboxUtils.ProcessWithDeduplication(ctx, h.pool, h.logger, failed.Source, failed.EventID, func(tx pgx.Tx) error {
		if id, err := uuid.Parse(patched.ID); err == nil {
			if err := h.auctionRepo.ReplaceImageURL(ctx, tx, id, created.ImageURL, patched.ImageURL); err != nil {
				return err
			}
		}

		outboxEvent, err := outboxDomain.NewOutboxEvent(events.TopicAuctionEvents, events.AggregateAuction, patched.ID, env)
		if err != nil {
			return err
		}

		return h.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	h.count("republished")
	mylogger.Info(ctx, h.logger, "Patched event republished",
		append(fields, zap.String("image_url", patched.ImageURL))...,
	)

	return nil
}

func (h *FaultHandler) count(outcome string) {
	if h.outcomes != nil {
		h.outcomes.WithLabelValues(outcome).Inc()
	}
}
