package tests

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/repository"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/service"
	"go.uber.org/zap"
)

// concurrentWriterRepo bumps the row version right after each of the first
// writes reads, as a competing writer committing in between would.
type concurrentWriterRepo struct {
	repository.AuctionRepository
	pool   *pgxpool.Pool
	writes int
}

func (r *concurrentWriterRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	auction, err := r.AuctionRepository.GetByID(ctx, id)
	if err != nil || r.writes == 0 {
		return auction, err
	}

	r.writes--
	if _, err := r.pool.Exec(ctx, `UPDATE auctions SET version = version + 1 WHERE id = $1`, id); err != nil {
		return nil, err
	}

	return auction, nil
}

func (s *IntegrationTestSuite) serviceWithConcurrentWrites(writes int) service.AuctionService {
	repo := &concurrentWriterRepo{AuctionRepository: s.AuctionRepo, pool: s.DbPool, writes: writes}
	return service.NewAuctionService(repo, s.OutboxRepo, s.DbPool, zap.NewNop())
}

func (s *IntegrationTestSuite) TestUpdateAuction_RetriesOnceAfterConflict() {
	auction := s.createAuction("alice", 0)
	color := "Red"

	updated, err := s.serviceWithConcurrentWrites(1).UpdateAuction(s.Ctx, auction.ID, "alice", &domain.UpdateAuctionInput{Color: &color})
	s.Require().NoError(err)
	s.Require().Equal("Red", updated.Color)

	s.Require().Equal("Red", s.getAuction(auction.ID).Color)
	s.Require().Equal(1, s.outboxCount(events.AuctionUpdatedEvent))
}

func (s *IntegrationTestSuite) TestUpdateAuction_RepeatedConflictSurfaces() {
	auction := s.createAuction("alice", 0)
	color := "Red"

	_, err := s.serviceWithConcurrentWrites(2).UpdateAuction(s.Ctx, auction.ID, "alice", &domain.UpdateAuctionInput{Color: &color})
	s.Require().ErrorIs(err, service.ErrConflict)

	s.Require().Equal("White", s.getAuction(auction.ID).Color)
	s.Require().Zero(s.outboxCount(events.AuctionUpdatedEvent))
}
