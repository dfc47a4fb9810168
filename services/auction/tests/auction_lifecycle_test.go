package tests

import (
	"errors"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/service"
)

func (s *IntegrationTestSuite) TestCreateAuction_WritesOutboxInSameTransaction() {
	auction := s.createAuction("alice", 20000)

	s.Require().Equal(domain.StatusLive, auction.Status)
	s.Require().Nil(auction.CurrentHighBid)
	s.Require().Equal(1, s.outboxCount(events.AuctionCreatedEvent))

	s.relayAll()

	created := s.Publisher.byEvent(events.AuctionCreatedEvent)
	s.Require().Len(created, 1)
	s.Require().Equal(events.TopicAuctionEvents, created[0].topic)
	s.Require().Equal(auction.ID.String(), created[0].key)
	s.Require().Positive(created[0].env.EventID)
	s.Require().Equal(service.Source, created[0].env.Source)

	var payload events.AuctionCreated
	s.Require().NoError(created[0].env.DecodePayload(&payload))
	s.Require().Equal("alice", payload.Seller)
	s.Require().EqualValues(20000, payload.ReservePrice)

	s.Require().Equal(0, s.outboxCount(events.AuctionCreatedEvent))
}

func (s *IntegrationTestSuite) TestUpdateAuction_OnlySellerMayUpdate() {
	auction := s.createAuction("alice", 0)
	color := "Red"

	_, err := s.AuctionService.UpdateAuction(s.Ctx, auction.ID, "bob", &domain.UpdateAuctionInput{Color: &color})
	s.Require().True(errors.Is(err, service.ErrForbidden))

	updated, err := s.AuctionService.UpdateAuction(s.Ctx, auction.ID, "alice", &domain.UpdateAuctionInput{Color: &color})
	s.Require().NoError(err)
	s.Require().Equal("Red", updated.Color)
	s.Require().Equal("Ford", updated.Make)
	s.Require().Greater(updated.Version, auction.Version)

	s.Require().Equal(1, s.outboxCount(events.AuctionUpdatedEvent))
}

func (s *IntegrationTestSuite) TestUpdateAuction_NotFound() {
	color := "Red"

	_, err := s.AuctionService.UpdateAuction(s.Ctx, uuid.New(), "alice", &domain.UpdateAuctionInput{Color: &color})
	s.Require().True(errors.Is(err, service.ErrNotFound))
}

func (s *IntegrationTestSuite) TestUpdateAuction_EmptyPatchEmitsNothing() {
	auction := s.createAuction("alice", 0)

	_, err := s.AuctionService.UpdateAuction(s.Ctx, auction.ID, "alice", &domain.UpdateAuctionInput{})
	s.Require().NoError(err)
	s.Require().Equal(0, s.outboxCount(events.AuctionUpdatedEvent))
}

func (s *IntegrationTestSuite) TestDeleteAuction_EmitsTombstone() {
	auction := s.createAuction("alice", 0)

	err := s.AuctionService.DeleteAuction(s.Ctx, auction.ID, "bob")
	s.Require().True(errors.Is(err, service.ErrForbidden))

	s.Require().NoError(s.AuctionService.DeleteAuction(s.Ctx, auction.ID, "alice"))
	s.Require().Equal(1, s.outboxCount(events.AuctionDeletedEvent))

	_, err = s.AuctionService.GetAuction(s.Ctx, auction.ID)
	s.Require().True(errors.Is(err, service.ErrNotFound))
}

func (s *IntegrationTestSuite) TestDeleteAuction_RejectedOnceBidsExist() {
	auction := s.createAuction("alice", 0)
	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, auction.ID, 500))

	err := s.AuctionService.DeleteAuction(s.Ctx, auction.ID, "alice")
	s.Require().True(errors.Is(err, service.ErrAuctionHasBids))
}

func (s *IntegrationTestSuite) TestApplyHighBid_OnlyMovesUp() {
	auction := s.createAuction("alice", 0)

	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, auction.ID, 1000))
	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, auction.ID, 1000))
	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, auction.ID, 700))

	got := s.getAuction(auction.ID)
	s.Require().NotNil(got.CurrentHighBid)
	s.Require().EqualValues(1000, *got.CurrentHighBid)
	s.Require().Equal(1, s.outboxCount(events.AuctionHighBidUpdatedEvent))

	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, auction.ID, 1200))
	got = s.getAuction(auction.ID)
	s.Require().EqualValues(1200, *got.CurrentHighBid)
	s.Require().Equal(2, s.outboxCount(events.AuctionHighBidUpdatedEvent))
}

func (s *IntegrationTestSuite) TestApplyHighBid_UnknownAuctionIsNoop() {
	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, uuid.New(), 1000))
	s.Require().Equal(0, s.outboxCount(events.AuctionHighBidUpdatedEvent))
}

func (s *IntegrationTestSuite) TestFinalizeAuction_Sold() {
	auction := s.createAuction("alice", 20000)
	amount := int64(25000)

	err := s.AuctionService.FinalizeAuction(s.Ctx, &events.AuctionFinished{
		AuctionID: auction.ID.String(),
		ItemSold:  true,
		Winner:    "bob",
		Seller:    "alice",
		Amount:    &amount,
	})
	s.Require().NoError(err)

	got := s.getAuction(auction.ID)
	s.Require().Equal(domain.StatusFinished, got.Status)
	s.Require().NotNil(got.Winner)
	s.Require().Equal("bob", *got.Winner)
	s.Require().EqualValues(25000, *got.SoldAmount)
	s.Require().EqualValues(25000, *got.CurrentHighBid)
	s.Require().Equal(1, s.outboxCount(events.AuctionSettledEvent))
}

func (s *IntegrationTestSuite) TestFinalizeAuction_ReserveNotMetKeepsHighBid() {
	auction := s.createAuction("alice", 20000)
	amount := int64(15000)

	err := s.AuctionService.FinalizeAuction(s.Ctx, &events.AuctionFinished{
		AuctionID: auction.ID.String(),
		ItemSold:  false,
		Winner:    "bob",
		Seller:    "alice",
		Amount:    &amount,
	})
	s.Require().NoError(err)

	got := s.getAuction(auction.ID)
	s.Require().Equal(domain.StatusReserveNotMet, got.Status)
	s.Require().Nil(got.Winner)
	s.Require().Nil(got.SoldAmount)
	s.Require().EqualValues(15000, *got.CurrentHighBid)
}

func (s *IntegrationTestSuite) TestFinalizeAuction_AppliedOnce() {
	auction := s.createAuction("alice", 0)
	amount := int64(5000)
	event := &events.AuctionFinished{
		AuctionID: auction.ID.String(),
		ItemSold:  true,
		Winner:    "bob",
		Seller:    "alice",
		Amount:    &amount,
	}

	s.Require().NoError(s.AuctionService.FinalizeAuction(s.Ctx, event))
	s.Require().NoError(s.AuctionService.FinalizeAuction(s.Ctx, event))

	s.Require().Equal(1, s.outboxCount(events.AuctionSettledEvent))

	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, auction.ID, 9000))
	got := s.getAuction(auction.ID)
	s.Require().EqualValues(5000, *got.CurrentHighBid)
}

func (s *IntegrationTestSuite) TestFinalizeAuction_MalformedIDIsPoison() {
	err := s.AuctionService.FinalizeAuction(s.Ctx, &events.AuctionFinished{AuctionID: "not-a-uuid"})
	s.Require().True(errors.Is(err, events.ErrPoisonMessage))
}
