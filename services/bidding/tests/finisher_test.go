package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	outboxRepository "github.com/sakashimaa/go-auction-next/pkg/outbox/repository"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/repository"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/service"
	"go.uber.org/zap"
)

func (s *IntegrationTestSuite) TestFinisher_RaceFinishesExactlyOnce() {
	id := s.projectAuction("alice", 0, time.Now().Add(time.Hour))
	_, err := s.BidService.PlaceBid(s.Ctx, id, "bob", 300)
	s.Require().NoError(err)
	s.expire(id)

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ok, err := s.Finisher.FinishAuction(s.Ctx, id)
			s.NoError(err)
			if ok {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Require().EqualValues(1, won.Load())
	s.Require().Len(s.finishedEvents(id), 1)
}

func (s *IntegrationTestSuite) TestFinisher_RunOnceSkipsLiveAndDeleted() {
	due := s.projectAuction("alice", 5000, time.Now().Add(time.Hour))
	live := s.projectAuction("alice", 0, time.Now().Add(time.Hour))
	gone := s.projectAuction("alice", 0, time.Now().Add(time.Hour))

	_, err := s.BidService.PlaceBid(s.Ctx, due, "bob", 4000)
	s.Require().NoError(err)

	s.expire(due)
	s.expire(gone)
	s.Require().NoError(s.Projection.ApplyDeleted(s.Ctx, &events.AuctionDeleted{ID: gone.String()}))

	won, err := s.Finisher.RunOnce(s.Ctx)
	s.Require().NoError(err)
	s.Require().Equal(1, won)

	finished := s.finishedEvents(due)
	s.Require().Len(finished, 1)
	s.Require().False(finished[0].ItemSold)
	s.Require().Equal("bob", finished[0].Winner)
	s.Require().EqualValues(4000, *finished[0].Amount)

	s.Require().Empty(s.finishedEvents(live))
	s.Require().Empty(s.finishedEvents(gone))

	won, err = s.Finisher.RunOnce(s.Ctx)
	s.Require().NoError(err)
	s.Require().Zero(won)
}

func (s *IntegrationTestSuite) TestFinisher_NoBids() {
	id := s.projectAuction("alice", 0, time.Now().Add(time.Hour))
	s.expire(id)

	ok, err := s.Finisher.FinishAuction(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().True(ok)

	finished := s.finishedEvents(id)
	s.Require().Len(finished, 1)
	s.Require().False(finished[0].ItemSold)
	s.Require().Empty(finished[0].Winner)
	s.Require().Nil(finished[0].Amount)
}

func (s *IntegrationTestSuite) TestFinisher_StartReturnsAfterInFlightBatch() {
	var due []uuid.UUID
	for i := 0; i < 5; i++ {
		id := s.projectAuction("alice", 0, time.Now().Add(time.Hour))
		s.expire(id)
		due = append(due, id)
	}

	logger := zap.NewNop()
	finisher := service.NewFinisher(
		s.AuctionRepo,
		repository.NewBidRepository(s.DbPool, logger),
		outboxRepository.NewOutboxRepository(s.DbPool, logger),
		s.DbPool,
		config.Finisher{Interval: 10 * time.Millisecond},
		logger,
	)

	ctx, cancel := context.WithCancel(s.Ctx)
	var workers sync.WaitGroup
	workers.Go(func() { finisher.Start(ctx) })

	s.Require().Eventually(func() bool {
		var finished int
		err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM auctions WHERE finished`).Scan(&finished)
		return err == nil && finished > 0
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	workers.Wait()

	// Every auction of the batch that was running at cancellation is closed
	// together with its event.
	for _, id := range due {
		s.Require().Len(s.finishedEvents(id), 1)
	}
}
