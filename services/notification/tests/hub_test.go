package tests

import (
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/events"
)

func (s *IntegrationTestSuite) TestBidPlaced_FannedOutOnce() {
	auctionID := uuid.NewString()
	bid := events.BidPlaced{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		Bidder:    "alice",
		BidTime:   time.Now().UTC(),
		Amount:    15000,
		BidStatus: events.BidStatusAccepted,
	}

	s.Require().NoError(s.deliver(events.TopicBidEvents, "bidding-service", events.BidPlacedEvent, 11, bid))
	s.Require().NoError(s.deliver(events.TopicBidEvents, "bidding-service", events.BidPlacedEvent, 11, bid))

	got := s.received(500 * time.Millisecond)
	s.Require().Len(got, 1)
	s.Equal(events.BidPlacedEvent, got[0].Type)
	s.Equal(auctionID, got[0].AuctionID)
	s.Equal(int64(11), got[0].EventID)
	s.Equal("bidding-service", got[0].Source)

	var ledger int
	err := s.DbPool.QueryRow(s.Ctx, `SELECT COUNT(*) FROM processed_events`).Scan(&ledger)
	s.Require().NoError(err)
	s.Equal(1, ledger)
}

func (s *IntegrationTestSuite) TestSameEventIdFromDifferentSources() {
	auctionID := uuid.NewString()

	s.Require().NoError(s.deliver(events.TopicAuctionEvents, "auction-service", events.AuctionCreatedEvent, 5,
		events.AuctionCreated{ID: auctionID, Seller: "bob"}))
	s.Require().NoError(s.deliver(events.TopicBidEvents, "bidding-service", events.AuctionFinishedEvent, 5,
		events.AuctionFinished{AuctionID: auctionID, Seller: "bob"}))

	got := s.received(500 * time.Millisecond)
	s.Require().Len(got, 2)
	s.Equal(events.AuctionCreatedEvent, got[0].Type)
	s.Equal(events.AuctionFinishedEvent, got[1].Type)
}

func (s *IntegrationTestSuite) TestUnhandledEventsIgnored() {
	s.Require().NoError(s.deliver(events.TopicAuctionEvents, "auction-service", events.AuctionDeletedEvent, 9,
		events.AuctionDeleted{ID: uuid.NewString()}))

	s.Empty(s.received(300 * time.Millisecond))
}

func (s *IntegrationTestSuite) TestMissingEventIdSkipped() {
	err := s.deliver(events.TopicBidEvents, "bidding-service", events.BidPlacedEvent, 0,
		events.BidPlaced{AuctionID: uuid.NewString(), Amount: 10, BidStatus: events.BidStatusAccepted})
	s.Require().NoError(err)

	s.Empty(s.received(300 * time.Millisecond))
}

func (s *IntegrationTestSuite) TestPatchedRepublishNotNotifiedTwice() {
	created := events.AuctionCreated{
		ID:         uuid.NewString(),
		Seller:     "alice",
		Make:       "Ford",
		Model:      "GT",
		AuctionEnd: time.Now().Add(time.Hour).UTC(),
	}

	s.Require().NoError(s.deliver(events.TopicAuctionEvents, "auction-service", events.AuctionCreatedEvent, 42, created))

	patched, err := events.NewEnvelope("auction-service", events.AuctionCreatedEvent, created)
	s.Require().NoError(err)
	patched.EventID = 77
	patched.OriginID = 42
	patched.Redelivery = 1
	s.Require().NoError(s.deliverEnvelope(events.TopicAuctionEvents, patched))

	got := s.received(500 * time.Millisecond)
	s.Require().Len(got, 1)
	s.Equal(int64(42), got[0].EventID)
}
