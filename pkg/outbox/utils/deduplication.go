package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// ProcessWithDeduplication runs action at most once per (source, eventID).
// The ledger row and whatever action writes through tx commit together, so a
// failed action leaves the event eligible for redelivery.
func ProcessWithDeduplication(
	ctx context.Context,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	source string,
	eventID int64,
	action func(tx pgx.Tx) error,
) error {
	span := trace.SpanFromContext(ctx)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(shutdownCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				shutdownCtx,
				logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	query := `
		INSERT INTO processed_events (source, event_id)
		VALUES ($1, $2)
	`

	_, err = tx.Exec(ctx, query, source, eventID)
	if err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == uniqueViolation {
			mylogger.Info(
				ctx,
				logger,
				"Event already processed, skipping",
				zap.String("source", source),
				zap.Int64("event_id", eventID),
			)

			return nil
		}

		span.RecordError(err)
		return fmt.Errorf("failed to record processed event: %w", err)
	}

	if err := action(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			logger,
			"Failed to commit transaction",
			zap.Error(err),
		)

		return fmt.Errorf("failed to commit processed event: %w", err)
	}

	return nil
}
