package tests

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/service"
)

func (s *IntegrationTestSuite) TestPlaceBid_ReserveScenario() {
	id := s.projectAuction("alice", 20000, time.Now().Add(time.Hour))

	first, err := s.BidService.PlaceBid(s.Ctx, id, "bob", 15000)
	s.Require().NoError(err)
	s.Require().Equal(domain.BidStatusAcceptedBelowReserve, first.Status)

	second, err := s.BidService.PlaceBid(s.Ctx, id, "carol", 25000)
	s.Require().NoError(err)
	s.Require().Equal(domain.BidStatusAccepted, second.Status)

	low, err := s.BidService.PlaceBid(s.Ctx, id, "bob", 25000)
	s.Require().NoError(err)
	s.Require().Equal(domain.BidStatusTooLow, low.Status)

	s.expire(id)
	won, err := s.Finisher.FinishAuction(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().True(won)

	finished := s.finishedEvents(id)
	s.Require().Len(finished, 1)
	s.Require().True(finished[0].ItemSold)
	s.Require().Equal("carol", finished[0].Winner)
	s.Require().Equal("alice", finished[0].Seller)
	s.Require().EqualValues(25000, *finished[0].Amount)
}

func (s *IntegrationTestSuite) TestPlaceBid_NoReserve() {
	id := s.projectAuction("alice", 0, time.Now().Add(time.Hour))

	bid, err := s.BidService.PlaceBid(s.Ctx, id, "bob", 500)
	s.Require().NoError(err)
	s.Require().Equal(domain.BidStatusAccepted, bid.Status)

	s.expire(id)
	_, err = s.Finisher.FinishAuction(s.Ctx, id)
	s.Require().NoError(err)

	finished := s.finishedEvents(id)
	s.Require().Len(finished, 1)
	s.Require().True(finished[0].ItemSold)
	s.Require().EqualValues(500, *finished[0].Amount)
}

func (s *IntegrationTestSuite) TestPlaceBid_AfterEndIsFinishedAndNeverWins() {
	id := s.projectAuction("alice", 0, time.Now().Add(time.Hour))

	_, err := s.BidService.PlaceBid(s.Ctx, id, "bob", 100)
	s.Require().NoError(err)

	s.expire(id)

	late, err := s.BidService.PlaceBid(s.Ctx, id, "carol", 100000)
	s.Require().NoError(err)
	s.Require().Equal(domain.BidStatusFinished, late.Status)

	_, err = s.Finisher.FinishAuction(s.Ctx, id)
	s.Require().NoError(err)

	finished := s.finishedEvents(id)
	s.Require().Len(finished, 1)
	s.Require().Equal("bob", finished[0].Winner)
	s.Require().EqualValues(100, *finished[0].Amount)
}

func (s *IntegrationTestSuite) TestPlaceBid_Rejections() {
	id := s.projectAuction("alice", 0, time.Now().Add(time.Hour))

	_, err := s.BidService.PlaceBid(s.Ctx, id, "alice", 100)
	s.Require().True(errors.Is(err, service.ErrSelfBid))

	_, err = s.BidService.PlaceBid(s.Ctx, id, "bob", 0)
	s.Require().True(errors.Is(err, service.ErrInvalidAmount))

	_, err = s.BidService.PlaceBid(s.Ctx, uuid.New(), "bob", 100)
	s.Require().True(errors.Is(err, service.ErrNotFound))

	bids, err := s.BidService.GetBidsForAuction(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().Empty(bids)
}

func (s *IntegrationTestSuite) TestPlaceBid_ColdProjectionUsesFallback() {
	id := uuid.New()
	s.Upstream.summaries[id] = &domain.AuctionSummary{
		ID:           id,
		Seller:       "alice",
		ReservePrice: 1000,
		AuctionEnd:   time.Now().Add(time.Hour),
		Status:       "Live",
	}

	bid, err := s.BidService.PlaceBid(s.Ctx, id, "bob", 1500)
	s.Require().NoError(err)
	s.Require().Equal(domain.BidStatusAccepted, bid.Status)

	_, err = s.BidService.PlaceBid(s.Ctx, id, "carol", 2000)
	s.Require().NoError(err)
	s.Require().Equal(1, s.Upstream.calls)

	// A late AuctionCreated must not disturb the seeded row.
	err = s.Projection.ApplyCreated(s.Ctx, &events.AuctionCreated{
		ID:           id.String(),
		Seller:       "alice",
		ReservePrice: 1000,
		AuctionEnd:   time.Now().Add(time.Hour),
	})
	s.Require().NoError(err)

	bids, err := s.BidService.GetBidsForAuction(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().Len(bids, 2)
	s.Require().Equal("carol", bids[0].Bidder)
}

func (s *IntegrationTestSuite) TestPlaceBid_FallbackRunsOutsideTransaction() {
	id := uuid.New()
	s.Upstream.summaries[id] = &domain.AuctionSummary{
		ID:         id,
		Seller:     "alice",
		AuctionEnd: time.Now().Add(time.Hour),
		Status:     "Live",
	}

	held := int32(-1)
	s.Upstream.onCall = func() {
		held = s.DbPool.Stat().AcquiredConns()
	}

	bid, err := s.BidService.PlaceBid(s.Ctx, id, "bob", 100)
	s.Require().NoError(err)
	s.Require().Equal(domain.BidStatusAccepted, bid.Status)
	s.Require().Equal(1, s.Upstream.calls)
	s.Require().Zero(held)
}

func (s *IntegrationTestSuite) TestPlaceBid_UnknownUpstreamAuctionIsNotFound() {
	_, err := s.BidService.PlaceBid(s.Ctx, uuid.New(), "bob", 100)
	s.Require().ErrorIs(err, service.ErrNotFound)
	s.Require().Equal(1, s.Upstream.calls)
	s.Require().Zero(s.DbPool.Stat().AcquiredConns())
}

func (s *IntegrationTestSuite) TestPlaceBid_TombstoneWinsOverLateCreate() {
	id := uuid.New()

	s.Require().NoError(s.Projection.ApplyDeleted(s.Ctx, &events.AuctionDeleted{ID: id.String()}))
	s.Require().NoError(s.Projection.ApplyCreated(s.Ctx, &events.AuctionCreated{
		ID:         id.String(),
		Seller:     "alice",
		AuctionEnd: time.Now().Add(time.Hour),
	}))

	_, err := s.BidService.PlaceBid(s.Ctx, id, "bob", 100)
	s.Require().True(errors.Is(err, service.ErrNotFound))
	s.Require().Zero(s.Upstream.calls)
}

func (s *IntegrationTestSuite) TestPlaceBid_EmitsBidPlacedKeyedByAuction() {
	id := s.projectAuction("alice", 0, time.Now().Add(time.Hour))

	bid, err := s.BidService.PlaceBid(s.Ctx, id, "bob", 700)
	s.Require().NoError(err)

	var (
		topic, key string
		body       []byte
	)
	err = s.DbPool.QueryRow(s.Ctx,
		`SELECT topic, aggregate_id, payload FROM outbox WHERE event_type = $1`,
		events.BidPlacedEvent,
	).Scan(&topic, &key, &body)
	s.Require().NoError(err)
	s.Require().Equal(events.TopicBidEvents, topic)
	s.Require().Equal(id.String(), key)

	env, err := events.Decode(body)
	s.Require().NoError(err)

	var placed events.BidPlaced
	s.Require().NoError(env.DecodePayload(&placed))
	s.Require().Equal(bid.ID.String(), placed.ID)
	s.Require().Equal(events.BidStatusAccepted, placed.BidStatus)
	s.Require().EqualValues(700, placed.Amount)
}
