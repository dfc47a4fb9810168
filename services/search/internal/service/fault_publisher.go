package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/go-auction-next/pkg/outbox/domain"
	"github.com/sakashimaa/go-auction-next/pkg/outbox/worker"
	"go.uber.org/zap"
)

// OutboxFaultPublisher writes faults to this service's outbox so they reach
// auction_faults through the relay like any other event.
type OutboxFaultPublisher struct {
	outboxRepo worker.OutboxRepository
	pool       *pgxpool.Pool
	logger     *zap.Logger
}

func NewOutboxFaultPublisher(outboxRepo worker.OutboxRepository, pool *pgxpool.Pool, logger *zap.Logger) *OutboxFaultPublisher {
	return &OutboxFaultPublisher{
		outboxRepo: outboxRepo,
		pool:       pool,
		logger:     logger,
	}
}

func (f *OutboxFaultPublisher) PublishFault(ctx context.Context, fault events.Fault) error {
	env, err := events.NewEnvelope(Source, events.FaultEvent, fault)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("%s-%d", fault.FailedEvent.Source, fault.FailedEvent.EventID)
	outboxEvent, err := outboxDomain.NewOutboxEvent(events.TopicFaults, events.AggregateFault, key, env)
	if err != nil {
		return err
	}

	tx, err := f.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(cleanupCtx, f.logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	if err := f.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to save fault: %w", err)
	}

	return tx.Commit(ctx)
}
