package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/repository"
	"go.uber.org/zap"
)

// AuctionProjection keeps the local auctions table in step with the auction
// service. Both handlers are idempotent, so no dedup ledger is kept.
type AuctionProjection struct {
	repo   repository.AuctionRepository
	logger *zap.Logger
}

func NewAuctionProjection(repo repository.AuctionRepository, logger *zap.Logger) *AuctionProjection {
	return &AuctionProjection{repo: repo, logger: logger}
}

func (p *AuctionProjection) ApplyCreated(ctx context.Context, event *events.AuctionCreated) error {
	id, err := uuid.Parse(event.ID)
	if err != nil {
		return fmt.Errorf("%w: auction id %q", events.ErrPoisonMessage, event.ID)
	}

	mylogger.Debug(ctx, p.logger, "Projecting auction", zap.String("auction_id", event.ID))

	return p.repo.Upsert(ctx, &domain.Auction{
		ID:           id,
		Seller:       event.Seller,
		ReservePrice: event.ReservePrice,
		AuctionEnd:   event.AuctionEnd,
	})
}

func (p *AuctionProjection) ApplyDeleted(ctx context.Context, event *events.AuctionDeleted) error {
	id, err := uuid.Parse(event.ID)
	if err != nil {
		return fmt.Errorf("%w: auction id %q", events.ErrPoisonMessage, event.ID)
	}

	mylogger.Info(ctx, p.logger, "Auction tombstoned", zap.String("auction_id", event.ID))

	return p.repo.MarkDeleted(ctx, id)
}
