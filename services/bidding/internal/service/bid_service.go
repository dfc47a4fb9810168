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
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/go-auction-next/pkg/outbox/domain"
	"github.com/sakashimaa/go-auction-next/pkg/outbox/worker"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/client"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Source identifies this service in event envelopes.
const Source = "bidding-service"

type BidService interface {
	PlaceBid(ctx context.Context, auctionID uuid.UUID, bidder string, amount int64) (*domain.Bid, error)
	GetBidsForAuction(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error)
}

type bidService struct {
	auctionRepo repository.AuctionRepository
	bidRepo     repository.BidRepository
	outboxRepo  worker.OutboxRepository
	auctions    client.AuctionClient
	pool        *pgxpool.Pool
	logger      *zap.Logger
	tracer      trace.Tracer
	placed      *prometheus.CounterVec
}

func NewBidService(
	auctionRepo repository.AuctionRepository,
	bidRepo repository.BidRepository,
	outboxRepo worker.OutboxRepository,
	auctions client.AuctionClient,
	pool *pgxpool.Pool,
	logger *zap.Logger,
	reg prometheus.Registerer,
) BidService {
	s := &bidService{
		auctionRepo: auctionRepo,
		bidRepo:     bidRepo,
		outboxRepo:  outboxRepo,
		auctions:    auctions,
		pool:        pool,
		logger:      logger,
		tracer:      otel.Tracer("bidding-service"),
	}

	if reg != nil {
		s.placed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bids_placed_total",
			Help: "Bids recorded by admission status.",
		}, []string{"status"})
		reg.MustRegister(s.placed)
	}

	return s
}

// PlaceBid records a bid and its BidPlaced event. Admissions for the same
// auction are serialized on the projection row lock.
func (s *bidService) PlaceBid(ctx context.Context, auctionID uuid.UUID, bidder string, amount int64) (*domain.Bid, error) {
	ctx, span := s.tracer.Start(ctx, "BidService.PlaceBid")
	defer span.End()

	span.SetAttributes(
		attribute.String("auction_id", auctionID.String()),
		attribute.String("bidder", bidder),
		attribute.Int64("amount", amount),
	)

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	seed, err := s.coldSeed(ctx, auctionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
				zap.String("method_name", "PlaceBid"),
			)
		}
	}()

	auction, err := s.lockAuction(ctx, tx, auctionID, seed)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if auction.Seller == bidder {
		return nil, ErrSelfBid
	}

	prior, err := s.bidRepo.GetHighestAccepted(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	bid := &domain.Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		Bidder:    bidder,
		BidTime:   now,
		Amount:    amount,
		Status:    domain.ClassifyBid(auction, prior, amount, now),
	}

	if err := s.bidRepo.Create(ctx, tx, bid); err != nil {
		return nil, err
	}

	env, err := events.NewEnvelope(Source, events.BidPlacedEvent, events.BidPlaced{
		ID:        bid.ID.String(),
		AuctionID: auctionID.String(),
		Bidder:    bid.Bidder,
		BidTime:   bid.BidTime,
		Amount:    bid.Amount,
		BidStatus: string(bid.Status),
	})
	if err != nil {
		return nil, err
	}

	if err := s.emit(ctx, tx, auctionID, env); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	if s.placed != nil {
		s.placed.WithLabelValues(string(bid.Status)).Inc()
	}

	mylogger.Info(ctx, s.logger, "Bid placed",
		zap.String("auction_id", auctionID.String()),
		zap.String("bid_id", bid.ID.String()),
		zap.String("status", string(bid.Status)),
	)

	return bid, nil
}

// coldSeed fetches the auction from the auction service when the
// AuctionCreated event has not been projected yet. It returns nil when a
// projection row, live or tombstoned, already exists. The call is made
// before any transaction is opened.
func (s *bidService) coldSeed(ctx context.Context, auctionID uuid.UUID) (*domain.Auction, error) {
	exists, err := s.auctionRepo.Exists(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	mylogger.Info(ctx, s.logger, "Auction not projected yet, asking auction service",
		zap.String("auction_id", auctionID.String()),
	)

	summary, err := s.auctions.GetAuctionSummary(ctx, auctionID)
	if err != nil {
		if errors.Is(err, client.ErrAuctionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("auction summary fallback: %w", err)
	}

	return summary.ToAuction(), nil
}

// lockAuction locks the local projection row, inserting seed first when
// the row was missing.
func (s *bidService) lockAuction(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, seed *domain.Auction) (*domain.Auction, error) {
	if seed != nil {
		if err := s.auctionRepo.InsertIfAbsent(ctx, tx, seed); err != nil {
			return nil, err
		}
	}

	auction, err := s.auctionRepo.GetForUpdate(ctx, tx, auctionID)
	if err != nil {
		if errors.Is(err, repository.ErrAuctionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if auction.Deleted {
		return nil, ErrNotFound
	}

	return auction, nil
}

func (s *bidService) GetBidsForAuction(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error) {
	ctx, span := s.tracer.Start(ctx, "BidService.GetBidsForAuction")
	defer span.End()

	return s.bidRepo.ListByAuction(ctx, auctionID)
}

func (s *bidService) emit(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, env events.Envelope) error {
	outboxEvent, err := outboxDomain.NewOutboxEvent(events.TopicBidEvents, events.AggregateAuction, auctionID.String(), env)
	if err != nil {
		return err
	}

	if err := s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}
