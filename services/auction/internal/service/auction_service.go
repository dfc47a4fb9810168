package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/go-auction-next/pkg/outbox/domain"
	"github.com/sakashimaa/go-auction-next/pkg/outbox/worker"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Source identifies this service in event envelopes.
const Source = "auction-service"

type AuctionService interface {
	CreateAuction(ctx context.Context, seller string, input *domain.CreateAuctionInput) (*domain.Auction, error)
	UpdateAuction(ctx context.Context, id uuid.UUID, seller string, input *domain.UpdateAuctionInput) (*domain.Auction, error)
	DeleteAuction(ctx context.Context, id uuid.UUID, seller string) error
	GetAuction(ctx context.Context, id uuid.UUID) (*domain.Auction, error)
	ListAuctions(ctx context.Context, updatedAfter *time.Time) ([]domain.Auction, error)
	GetAuctionSummary(ctx context.Context, id uuid.UUID) (*domain.Summary, error)
	ApplyHighBid(ctx context.Context, auctionID uuid.UUID, amount int64) error
	FinalizeAuction(ctx context.Context, event *events.AuctionFinished) error
}

type auctionService struct {
	auctionRepo repository.AuctionRepository
	outboxRepo  worker.OutboxRepository
	pool        *pgxpool.Pool
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewAuctionService(
	auctionRepo repository.AuctionRepository,
	outboxRepo worker.OutboxRepository,
	pool *pgxpool.Pool,
	logger *zap.Logger,
) AuctionService {
	return &auctionService{
		auctionRepo: auctionRepo,
		outboxRepo:  outboxRepo,
		pool:        pool,
		logger:      logger,
		tracer:      otel.Tracer("auction-service"),
	}
}

func (s *auctionService) CreateAuction(ctx context.Context, seller string, input *domain.CreateAuctionInput) (*domain.Auction, error) {
	ctx, span := s.tracer.Start(ctx, "AuctionService.CreateAuction")
	defer span.End()

	auction := &domain.Auction{
		ID:           uuid.New(),
		Seller:       seller,
		ReservePrice: input.ReservePrice,
		AuctionEnd:   input.AuctionEnd.UTC(),
		Status:       domain.StatusLive,
		Item: domain.Item{
			Make:     input.Make,
			Model:    input.Model,
			Year:     input.Year,
			Color:    input.Color,
			Mileage:  input.Mileage,
			ImageURL: input.ImageURL,
		},
	}

	span.SetAttributes(attribute.String("auction_id", auction.ID.String()))

	err := s.inTx(ctx, "CreateAuction", func(tx pgx.Tx) error {
		if err := s.auctionRepo.Create(ctx, tx, auction); err != nil {
			return err
		}

		return s.emitEvent(ctx, tx, auction.ID, events.AuctionCreatedEvent, events.AuctionCreated{
			ID:           auction.ID.String(),
			Seller:       auction.Seller,
			ReservePrice: auction.ReservePrice,
			Make:         auction.Make,
			Model:        auction.Model,
			Year:         auction.Year,
			Color:        auction.Color,
			Mileage:      auction.Mileage,
			ImageURL:     auction.ImageURL,
			AuctionEnd:   auction.AuctionEnd,
			CreatedAt:    auction.CreatedAt,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Auction created",
		zap.String("auction_id", auction.ID.String()),
		zap.String("seller", seller),
	)

	return auction, nil
}

// UpdateAuction retries once when a concurrent writer bumped the version
// between the read and the write.
func (s *auctionService) UpdateAuction(ctx context.Context, id uuid.UUID, seller string, input *domain.UpdateAuctionInput) (*domain.Auction, error) {
	ctx, span := s.tracer.Start(ctx, "AuctionService.UpdateAuction")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	var (
		auction *domain.Auction
		err     error
	)

	for attempt := 1; attempt <= 2; attempt++ {
		auction, err = s.tryUpdate(ctx, id, seller, input)
		if !errors.Is(err, ErrConflict) {
			break
		}

		mylogger.Warn(ctx, s.logger, "Auction update conflict",
			zap.String("auction_id", id.String()),
			zap.Int("attempt", attempt),
		)
	}

	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return auction, nil
}

func (s *auctionService) tryUpdate(ctx context.Context, id uuid.UUID, seller string, input *domain.UpdateAuctionInput) (*domain.Auction, error) {
	auction, err := s.auctionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if auction.Seller != seller {
		return nil, ErrForbidden
	}

	if input.Empty() {
		return auction, nil
	}

	input.Apply(&auction.Item)

	err = s.inTx(ctx, "UpdateAuction", func(tx pgx.Tx) error {
		if err := s.auctionRepo.UpdateItem(ctx, tx, auction); err != nil {
			return err
		}

		return s.emitEvent(ctx, tx, auction.ID, events.AuctionUpdatedEvent, events.AuctionUpdated{
			ID:      auction.ID.String(),
			Make:    input.Make,
			Model:   input.Model,
			Year:    input.Year,
			Color:   input.Color,
			Mileage: input.Mileage,
		})
	})
	if err != nil {
		return nil, err
	}

	return auction, nil
}

func (s *auctionService) DeleteAuction(ctx context.Context, id uuid.UUID, seller string) error {
	ctx, span := s.tracer.Start(ctx, "AuctionService.DeleteAuction")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	err := s.inTx(ctx, "DeleteAuction", func(tx pgx.Tx) error {
		auction, err := s.auctionRepo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		switch {
		case auction.Seller != seller:
			return ErrForbidden
		case auction.Status != domain.StatusLive:
			return ErrAuctionNotLive
		case auction.CurrentHighBid != nil:
			return ErrAuctionHasBids
		}

		if err := s.auctionRepo.Delete(ctx, tx, id); err != nil {
			return err
		}

		return s.emitEvent(ctx, tx, id, events.AuctionDeletedEvent, events.AuctionDeleted{ID: id.String()})
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	mylogger.Info(ctx, s.logger, "Auction deleted", zap.String("auction_id", id.String()))
	return nil
}

func (s *auctionService) GetAuction(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	return s.auctionRepo.GetByID(ctx, id)
}

func (s *auctionService) ListAuctions(ctx context.Context, updatedAfter *time.Time) ([]domain.Auction, error) {
	return s.auctionRepo.List(ctx, updatedAfter)
}

func (s *auctionService) GetAuctionSummary(ctx context.Context, id uuid.UUID) (*domain.Summary, error) {
	auction, err := s.auctionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	summary := auction.Summary()
	return &summary, nil
}

// ApplyHighBid is idempotent: lower, equal or late bids leave the auction as is.
func (s *auctionService) ApplyHighBid(ctx context.Context, auctionID uuid.UUID, amount int64) error {
	ctx, span := s.tracer.Start(ctx, "AuctionService.ApplyHighBid")
	defer span.End()

	span.SetAttributes(
		attribute.String("auction_id", auctionID.String()),
		attribute.Int64("amount", amount),
	)

	return s.inTx(ctx, "ApplyHighBid", func(tx pgx.Tx) error {
		raised, err := s.auctionRepo.RaiseHighBid(ctx, tx, auctionID, amount)
		if err != nil {
			return err
		}

		if !raised {
			mylogger.Debug(ctx, s.logger, "High bid unchanged",
				zap.String("auction_id", auctionID.String()),
				zap.Int64("amount", amount),
			)
			return nil
		}

		return s.emitEvent(ctx, tx, auctionID, events.AuctionHighBidUpdatedEvent, events.AuctionHighBidUpdated{
			AuctionID:      auctionID.String(),
			CurrentHighBid: amount,
		})
	})
}

// FinalizeAuction is the only writer of status, winner and sold amount. A
// second AuctionFinished for the same auction is a no-op.
func (s *auctionService) FinalizeAuction(ctx context.Context, event *events.AuctionFinished) error {
	ctx, span := s.tracer.Start(ctx, "AuctionService.FinalizeAuction")
	defer span.End()

	span.SetAttributes(
		attribute.String("auction_id", event.AuctionID),
		attribute.Bool("item_sold", event.ItemSold),
	)

	id, err := uuid.Parse(event.AuctionID)
	if err != nil {
		return fmt.Errorf("%w: auction id %q", events.ErrPoisonMessage, event.AuctionID)
	}

	settlement := domain.Settle(event.ItemSold, event.Winner, event.Amount)

	return s.inTx(ctx, "FinalizeAuction", func(tx pgx.Tx) error {
		finalized, err := s.auctionRepo.Finalize(ctx, tx, id, settlement)
		if err != nil {
			return err
		}

		if !finalized {
			mylogger.Info(ctx, s.logger, "Auction already settled or unknown, skipping",
				zap.String("auction_id", event.AuctionID),
			)
			return nil
		}

		settled := events.AuctionSettled{
			AuctionID:  event.AuctionID,
			Status:     string(settlement.Status),
			SoldAmount: settlement.SoldAmount,
			HighBid:    settlement.HighBid,
		}
		if settlement.Winner != nil {
			settled.Winner = *settlement.Winner
		}

		mylogger.Info(ctx, s.logger, "Auction settled",
			zap.String("auction_id", event.AuctionID),
			zap.String("status", settled.Status),
		)

		return s.emitEvent(ctx, tx, id, events.AuctionSettledEvent, settled)
	})
}

func (s *auctionService) emitEvent(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, event string, payload any) error {
	env, err := events.NewEnvelope(Source, event, payload)
	if err != nil {
		return err
	}

	return s.emitEnvelope(ctx, tx, auctionID.String(), env)
}

func (s *auctionService) emitEnvelope(ctx context.Context, tx pgx.Tx, aggregateID string, env events.Envelope) error {
	outboxEvent, err := outboxDomain.NewOutboxEvent(events.TopicAuctionEvents, events.AggregateAuction, aggregateID, env)
	if err != nil {
		return err
	}

	if err := s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

func (s *auctionService) inTx(ctx context.Context, method string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Error starting transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
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
				zap.String("method_name", method),
				zap.String("service", "auction_service"),
			)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}
