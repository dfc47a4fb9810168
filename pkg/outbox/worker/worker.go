package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	GetPendingEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error)
	DeleteEvent(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string, nextAttemptAt time.Time) error
	CountPending(ctx context.Context) (int64, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, body []byte) error
}

type OutboxProcessor struct {
	pool           *pgxpool.Pool
	repo           OutboxRepository
	publisher      Publisher
	logger         *zap.Logger
	batchSize      int
	interval       time.Duration
	publishTimeout time.Duration
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	tracer         trace.Tracer
	metrics        *Metrics
}

func NewOutboxProcessor(
	pool *pgxpool.Pool,
	repo OutboxRepository,
	publisher Publisher,
	cfg config.Outbox,
	logger *zap.Logger,
) *OutboxProcessor {
	p := &OutboxProcessor{
		pool:           pool,
		repo:           repo,
		publisher:      publisher,
		logger:         logger,
		batchSize:      50,
		interval:       500 * time.Millisecond,
		publishTimeout: 5 * time.Second,
		baseBackoff:    time.Second,
		maxBackoff:     5 * time.Minute,
		tracer:         otel.Tracer("outbox-worker"),
	}

	if cfg.BatchSize > 0 {
		p.batchSize = cfg.BatchSize
	}
	if cfg.Interval > 0 {
		p.interval = cfg.Interval
	}
	if cfg.PublishTimeout > 0 {
		p.publishTimeout = cfg.PublishTimeout
	}
	if cfg.BaseBackoff > 0 {
		p.baseBackoff = cfg.BaseBackoff
	}
	if cfg.MaxBackoff > 0 {
		p.maxBackoff = cfg.MaxBackoff
	}

	return p
}

// WithMetrics registers relay counters on reg.
func (p *OutboxProcessor) WithMetrics(reg prometheus.Registerer, service string) *OutboxProcessor {
	p.metrics = NewMetrics(reg, service)
	return p
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Int("batch_size", p.batchSize),
		zap.Duration("interval", p.interval),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(
				ctx,
				p.logger,
				"Outbox processor stopping",
			)

			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil && ctx.Err() == nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// RunOnce relays a single batch.
func (p *OutboxProcessor) RunOnce(ctx context.Context) error {
	return p.processBatch(ctx)
}

func (p *OutboxProcessor) processBatch(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.processBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
				zap.String("method_name", "processBatch"),
			)
		}
	}()

	events, err := p.repo.GetPendingEvents(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	span.SetAttributes(attribute.Int("outbox.batch", len(events)))

	mylogger.Debug(
		ctx,
		p.logger,
		"Processing outbox events",
		zap.Int("count", len(events)),
	)

	blocked := make(map[string]bool)
	for _, event := range events {
		aggregate := event.AggregateType + "/" + event.AggregateID
		if blocked[aggregate] {
			continue
		}
		if event.NextAttemptAt.After(time.Now()) {
			blocked[aggregate] = true
			continue
		}

		if err := p.relay(ctx, event); err != nil {
			blocked[aggregate] = true
			p.metrics.failed()

			next := time.Now().Add(p.backoff(event.Attempts))

			mylogger.Warn(
				ctx,
				p.logger,
				"outbox worker publish failed",
				zap.Int64("id", event.Id),
				zap.String("aggregate_id", event.AggregateID),
				zap.Int64("attempts", event.Attempts+1),
				zap.Time("next_attempt_at", next),
				zap.Error(err),
			)

			if dbErr := p.repo.MarkEventFailed(ctx, tx, event.Id, err.Error(), next); dbErr != nil {
				return fmt.Errorf("mark event %d failed: %w", event.Id, dbErr)
			}

			continue
		}

		if err := p.repo.DeleteEvent(ctx, tx, event.Id); err != nil {
			return fmt.Errorf("delete relayed event %d: %w", event.Id, err)
		}

		p.metrics.published()

		mylogger.Debug(
			ctx,
			p.logger,
			"outbox worker event published successfully",
			zap.Int64("id", event.Id),
			zap.String("event_type", event.EventType),
		)
	}

	// Entries already acknowledged by the broker must be deleted even when
	// shutdown cancelled ctx mid-batch.
	if err := tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("commit outbox batch: %w", err)
	}

	if p.metrics != nil {
		if pending, err := p.repo.CountPending(ctx); err == nil {
			p.metrics.Pending.Set(float64(pending))
		}
	}

	return nil
}

// relay stamps the outbox id into the envelope and publishes it keyed by
// aggregate id.
func (p *OutboxProcessor) relay(ctx context.Context, event *domain.OutboxEvent) error {
	var payloadMap map[string]json.RawMessage
	if err := json.Unmarshal(event.Payload, &payloadMap); err != nil {
		return fmt.Errorf("unmarshal event payload: %w", err)
	}

	payloadMap["event_id"] = json.RawMessage(strconv.FormatInt(event.Id, 10))

	body, err := json.Marshal(payloadMap)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	return p.publisher.Publish(pubCtx, event.Topic, event.AggregateID, body)
}

func (p *OutboxProcessor) backoff(attempts int64) time.Duration {
	return Backoff(p.baseBackoff, p.maxBackoff, attempts)
}

// Backoff returns base*2^attempts capped at ceiling.
func Backoff(base, ceiling time.Duration, attempts int64) time.Duration {
	d := base
	for i := int64(0); i < attempts; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}

	return min(d, ceiling)
}
