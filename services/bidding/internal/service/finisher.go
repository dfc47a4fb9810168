package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/go-auction-next/pkg/outbox/domain"
	"github.com/sakashimaa/go-auction-next/pkg/outbox/worker"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Finisher closes auctions whose end has passed and publishes the verdict.
// Several instances may run; the finished marker decides which one emits.
type Finisher struct {
	auctionRepo repository.AuctionRepository
	bidRepo     repository.BidRepository
	outboxRepo  worker.OutboxRepository
	pool        *pgxpool.Pool
	logger      *zap.Logger
	interval    time.Duration
	tracer      trace.Tracer
	finished    prometheus.Counter
}

func NewFinisher(
	auctionRepo repository.AuctionRepository,
	bidRepo repository.BidRepository,
	outboxRepo worker.OutboxRepository,
	pool *pgxpool.Pool,
	cfg config.Finisher,
	logger *zap.Logger,
) *Finisher {
	f := &Finisher{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		outboxRepo:  outboxRepo,
		pool:        pool,
		logger:      logger,
		interval:    5 * time.Second,
		tracer:      otel.Tracer("auction-finisher"),
	}

	if cfg.Interval > 0 {
		f.interval = cfg.Interval
	}

	return f
}

func (f *Finisher) WithMetrics(reg prometheus.Registerer) *Finisher {
	f.finished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auctions_finished_total",
		Help: "Auctions closed by this finisher instance.",
	})
	reg.MustRegister(f.finished)

	return f
}

func (f *Finisher) Start(ctx context.Context) {
	mylogger.Info(ctx, f.logger, "Starting auction finisher", zap.Duration("interval", f.interval))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, f.logger, "Auction finisher stopping")
			return
		case <-ticker.C:
			if _, err := f.RunOnce(context.WithoutCancel(ctx)); err != nil {
				mylogger.Error(ctx, f.logger, "Error finishing auctions", zap.Error(err))
			}
		}
	}
}

// RunOnce finishes every due auction and reports how many this instance won.
func (f *Finisher) RunOnce(ctx context.Context) (int, error) {
	ctx, span := f.tracer.Start(ctx, "Finisher.RunOnce")
	defer span.End()

	due, err := f.auctionRepo.ListDue(ctx, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	if len(due) == 0 {
		return 0, nil
	}

	mylogger.Info(ctx, f.logger, "Found finished auctions", zap.Int("count", len(due)))

	won := 0
	var errs []error
	for _, id := range due {
		ok, err := f.FinishAuction(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("finish %s: %w", id, err))
			continue
		}
		if ok {
			won++
		}
	}

	span.SetAttributes(attribute.Int("finisher.won", won))
	return won, errors.Join(errs...)
}

// FinishAuction claims id and appends its AuctionFinished event. It reports
// false when another instance already claimed the auction.
func (f *Finisher) FinishAuction(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := f.tracer.Start(ctx, "Finisher.FinishAuction")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	tx, err := f.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				f.logger,
				"Error rolling back transaction",
				zap.Error(err),
				zap.String("method_name", "FinishAuction"),
			)
		}
	}()

	auction, err := f.auctionRepo.MarkFinished(ctx, tx, id)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	if auction == nil {
		mylogger.Debug(ctx, f.logger, "Auction already finished elsewhere", zap.String("auction_id", id.String()))
		return false, nil
	}

	winner, err := f.bidRepo.GetHighestAccepted(ctx, tx, id)
	if err != nil {
		return false, err
	}

	outcome := domain.Outcome(auction, winner)

	env, err := events.NewEnvelope(Source, events.AuctionFinishedEvent, outcome)
	if err != nil {
		return false, err
	}

	outboxEvent, err := outboxDomain.NewOutboxEvent(events.TopicBidEvents, events.AggregateAuction, id.String(), env)
	if err != nil {
		return false, err
	}

	if err := f.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		return false, fmt.Errorf("failed to save outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to commit: %w", err)
	}

	if f.finished != nil {
		f.finished.Inc()
	}

	mylogger.Info(ctx, f.logger, "Auction finished",
		zap.String("auction_id", id.String()),
		zap.Bool("item_sold", outcome.ItemSold),
		zap.String("winner", outcome.Winner),
	)

	return true, nil
}
