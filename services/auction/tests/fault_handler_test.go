package tests

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/events"
)

func (s *IntegrationTestSuite) seedBadImageAuction() (uuid.UUID, events.Envelope) {
	auction := s.createAuction("alice", 0)

	_, err := s.DbPool.Exec(s.Ctx, `UPDATE auctions SET image_url = 'cdn.example.com/a.jpg' WHERE id = $1`, auction.ID)
	s.Require().NoError(err)

	payload, err := json.Marshal(events.AuctionCreated{
		ID:         auction.ID.String(),
		Seller:     "alice",
		Make:       "Ford",
		Model:      "GT",
		Year:       2020,
		Color:      "White",
		Mileage:    50000,
		ImageURL:   "cdn.example.com/a.jpg",
		AuctionEnd: auction.AuctionEnd,
		CreatedAt:  time.Now().UTC(),
	})
	s.Require().NoError(err)

	s.TruncateTable("outbox")

	return auction.ID, events.Envelope{
		Event:   events.AuctionCreatedEvent,
		EventID: 42,
		Source:  "auction-service",
		Version: events.SchemaVersion,
		Payload: payload,
	}
}

func (s *IntegrationTestSuite) TestFaultHandler_PatchesAndRepublishesOnce() {
	id, failed := s.seedBadImageAuction()
	fault := &events.Fault{
		FailedEvent: failed,
		ErrorClass:  events.FaultClassRecoverable,
		Message:     "imageUrl: must be a valid url",
		Consumer:    "search-service",
	}

	s.Require().NoError(s.FaultHandler.Handle(s.Ctx, fault))
	s.Require().NoError(s.FaultHandler.Handle(s.Ctx, fault))

	s.relayAll()

	republished := s.Publisher.byEvent(events.AuctionCreatedEvent)
	s.Require().Len(republished, 1)
	s.Require().Equal(1, republished[0].env.Redelivery)
	s.Require().EqualValues(42, republished[0].env.OriginID)
	s.Require().EqualValues(42, republished[0].env.Sequence())

	var payload events.AuctionCreated
	s.Require().NoError(republished[0].env.DecodePayload(&payload))
	s.Require().Equal("https://cdn.example.com/a.jpg", payload.ImageURL)

	got := s.getAuction(id)
	s.Require().Equal("https://cdn.example.com/a.jpg", got.ImageURL)
}

func (s *IntegrationTestSuite) TestFaultHandler_GivesUpAfterRedelivery() {
	_, failed := s.seedBadImageAuction()
	failed.Redelivery = 1

	err := s.FaultHandler.Handle(s.Ctx, &events.Fault{
		FailedEvent: failed,
		ErrorClass:  events.FaultClassRecoverable,
		Consumer:    "search-service",
	})
	s.Require().NoError(err)
	s.Require().Equal(0, s.outboxCount(events.AuctionCreatedEvent))
}

func (s *IntegrationTestSuite) TestFaultHandler_IgnoresPoison() {
	_, failed := s.seedBadImageAuction()

	err := s.FaultHandler.Handle(s.Ctx, &events.Fault{
		FailedEvent: failed,
		ErrorClass:  events.FaultClassPoison,
		Consumer:    "search-service",
	})
	s.Require().NoError(err)
	s.Require().Equal(0, s.outboxCount(events.AuctionCreatedEvent))
}
