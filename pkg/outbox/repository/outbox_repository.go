package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/pkg/outbox/domain"
	"github.com/sakashimaa/go-auction-next/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type outboxRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewOutboxRepository(pool *pgxpool.Pool, logger *zap.Logger) worker.OutboxRepository {
	return &outboxRepo{
		pool:   pool,
		tracer: otel.Tracer("contract/outbox_repo"),
		logger: logger,
	}
}

func (r *outboxRepo) MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string, nextAttemptAt time.Time) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.MarkEventFailed")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("outbox.error_message", errMsg),
	)

	query := `
		UPDATE outbox
		SET last_error = $1,
			attempts = attempts + 1,
			next_attempt_at = $2
		WHERE id = $3;
	`

	_, err := tx.Exec(ctx, query, errMsg, nextAttemptAt, eventID)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

func (r *outboxRepo) DeleteEvent(ctx context.Context, tx pgx.Tx, eventID int64) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.DeleteEvent")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
	)

	_, err := tx.Exec(ctx, `DELETE FROM outbox WHERE id = $1`, eventID)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

func (r *outboxRepo) SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.SaveOutboxEvent")
	defer span.End()

	span.SetAttributes(
		attribute.String("aggregate_id", event.AggregateID),
		attribute.String("aggregate_type", event.AggregateType),
		attribute.String("event_type", event.EventType),
	)

	query := `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, topic)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, next_attempt_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		event.AggregateType,
		event.AggregateID,
		event.EventType,
		event.Payload,
		event.Topic,
	).Scan(&event.Id, &event.CreatedAt, &event.NextAttemptAt)

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

// GetPendingEvents returns up to batchSize entries, oldest first, for the
// aggregates whose head entry is due and could be locked. The head row lock
// is held until tx ends, so a concurrent relay skips the whole aggregate and
// never publishes a successor ahead of an undelivered predecessor.
func (r *outboxRepo) GetPendingEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error) {
	ctx, span := r.tracer.Start(ctx, "OutboxRepository.GetPendingEvents")
	defer span.End()

	span.SetAttributes(
		attribute.Int("batch_size", batchSize),
	)

	query := `
		WITH heads AS (
			SELECT h.aggregate_type, h.aggregate_id
			FROM outbox h
			WHERE h.next_attempt_at <= NOW()
				AND NOT EXISTS (
					SELECT 1
					FROM outbox p
					WHERE p.aggregate_type = h.aggregate_type
						AND p.aggregate_id = h.aggregate_id
						AND p.id < h.id
				)
			ORDER BY h.id ASC
			LIMIT $1
			FOR UPDATE OF h SKIP LOCKED
		)
		SELECT o.id, o.aggregate_type, o.aggregate_id, o.event_type, o.payload,
			o.created_at, o.attempts, o.last_error, o.next_attempt_at, o.topic
		FROM outbox o
		JOIN heads ON heads.aggregate_type = o.aggregate_type
			AND heads.aggregate_id = o.aggregate_id
		ORDER BY o.id ASC
		LIMIT $1
	`

	rows, err := tx.Query(ctx, query, batchSize)
	if err != nil {
		span.RecordError(err)

		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(
			&e.Id,
			&e.AggregateType,
			&e.AggregateID,
			&e.EventType,
			&e.Payload,
			&e.CreatedAt,
			&e.Attempts,
			&e.LastError,
			&e.NextAttemptAt,
			&e.Topic,
		); err != nil {
			span.RecordError(err)

			return nil, fmt.Errorf("error scanning event: %w", err)
		}

		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	span.SetAttributes(
		attribute.Int("result_count", len(events)),
	)

	return events, nil
}

func (r *outboxRepo) CountPending(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}

	return count, nil
}
