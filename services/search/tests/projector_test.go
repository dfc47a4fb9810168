package tests

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/services/search/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/search/internal/service"
)

func ptr[T any](v T) *T { return &v }

func (s *IntegrationTestSuite) TestProjector_CreatedIsSearchable() {
	id := s.create("alice", "Ford", time.Now().Add(time.Hour), 1)

	item, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().Equal("Ford", item.Make)
	s.Require().Equal(domain.StatusLive, item.Status)
}

func (s *IntegrationTestSuite) TestProjector_DuplicateDeliveryIsHarmless() {
	id := uuid.New()
	created := s.auctionCreated(id, "alice", "Ford", time.Now().Add(time.Hour))
	bid := events.BidPlaced{AuctionID: id.String(), Bidder: "bob", Amount: 500, BidStatus: events.BidStatusAccepted}

	for i := 0; i < 2; i++ {
		s.deliver(events.TopicAuctionEvents, events.AuctionCreatedEvent, 1, created)
		s.deliver(events.TopicBidEvents, events.BidPlacedEvent, 1, bid)
	}

	item, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().EqualValues(500, *item.CurrentHighBid)
}

func (s *IntegrationTestSuite) TestProjector_FinishedBeforeCreatedConverges() {
	id := uuid.New()
	amount := int64(25000)

	s.deliver(events.TopicBidEvents, events.AuctionFinishedEvent, 9, events.AuctionFinished{
		AuctionID: id.String(),
		ItemSold:  true,
		Winner:    "bob",
		Seller:    "alice",
		Amount:    &amount,
	})

	_, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().True(errors.Is(err, service.ErrNotFound))

	s.deliver(events.TopicAuctionEvents, events.AuctionCreatedEvent, 1, s.auctionCreated(id, "alice", "Ford", time.Now().Add(-time.Minute)))

	item, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusFinished, item.Status)
	s.Require().Equal("bob", *item.Winner)
	s.Require().EqualValues(25000, *item.SoldAmount)
	s.Require().Equal("Ford", item.Make)
}

func (s *IntegrationTestSuite) TestProjector_UnknownAuctionBidTouchesNothingElse() {
	other := s.create("alice", "Ford", time.Now().Add(time.Hour), 1)
	unknown := uuid.New()

	s.deliver(events.TopicBidEvents, events.BidPlacedEvent, 2, events.BidPlaced{
		AuctionID: unknown.String(),
		Bidder:    "bob",
		Amount:    900,
		BidStatus: events.BidStatusAccepted,
	})

	_, err := s.SearchService.GetItem(s.Ctx, unknown)
	s.Require().True(errors.Is(err, service.ErrNotFound))

	item, err := s.SearchService.GetItem(s.Ctx, other)
	s.Require().NoError(err)
	s.Require().Nil(item.CurrentHighBid)
}

func (s *IntegrationTestSuite) TestProjector_TombstoneSuppressesLateCreate() {
	id := uuid.New()

	s.deliver(events.TopicAuctionEvents, events.AuctionDeletedEvent, 5, events.AuctionDeleted{ID: id.String()})
	s.deliver(events.TopicAuctionEvents, events.AuctionCreatedEvent, 1, s.auctionCreated(id, "alice", "Ford", time.Now().Add(time.Hour)))

	_, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().True(errors.Is(err, service.ErrNotFound))
}

func (s *IntegrationTestSuite) TestProjector_UpdateInvalidatesCache() {
	id := s.create("alice", "Ford", time.Now().Add(time.Hour), 1)

	cached, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().Equal("White", cached.Color)

	exists, err := s.Redis.Exists(s.Ctx, "item:"+id.String()).Result()
	s.Require().NoError(err)
	s.Require().EqualValues(1, exists)

	s.deliver(events.TopicAuctionEvents, events.AuctionUpdatedEvent, 2, events.AuctionUpdated{ID: id.String(), Color: ptr("Red")})

	item, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().Equal("Red", item.Color)
}

func (s *IntegrationTestSuite) TestProjector_SchemelessImageRaisesFault() {
	id := uuid.New()
	created := s.auctionCreated(id, "alice", "Ford", time.Now().Add(time.Hour))
	created.ImageURL = "cdn.example.com/a.jpg"

	s.deliver(events.TopicAuctionEvents, events.AuctionCreatedEvent, 3, created)

	_, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().True(errors.Is(err, service.ErrNotFound))
	s.Require().Equal(1, s.faultCount())

	var body []byte
	err = s.DbPool.QueryRow(s.Ctx, `SELECT payload FROM outbox WHERE topic = $1`, events.TopicFaults).Scan(&body)
	s.Require().NoError(err)

	env, err := events.Decode(body)
	s.Require().NoError(err)

	var fault events.Fault
	s.Require().NoError(env.DecodePayload(&fault))
	s.Require().Equal(events.FaultClassRecoverable, fault.ErrorClass)
	s.Require().Equal("search-service", fault.Consumer)
	s.Require().EqualValues(3, fault.FailedEvent.EventID)

	// The patched republish carries the original sequence.
	created.ImageURL = "https://cdn.example.com/a.jpg"
	patched, err := events.NewEnvelope("auction-service", events.AuctionCreatedEvent, created)
	s.Require().NoError(err)
	patched.EventID = 40
	patched.OriginID = 3
	patched.Redelivery = 1
	s.deliverEnvelope(events.TopicAuctionEvents, patched)

	item, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().Equal("https://cdn.example.com/a.jpg", item.ImageURL)
}

func (s *IntegrationTestSuite) TestProjector_InvalidPayloadIsSkipped() {
	id := uuid.New()
	created := s.auctionCreated(id, "", "Ford", time.Now().Add(time.Hour))

	s.deliver(events.TopicAuctionEvents, events.AuctionCreatedEvent, 4, created)
	s.Require().NoError(s.Consumer.Handle(s.Ctx, events.TopicAuctionEvents, []byte(`{"broken":`)))
	s.Require().NoError(s.Consumer.Handle(s.Ctx, events.TopicAuctionEvents, json.RawMessage(`{"event":"AuctionCreated","version":1,"payload":"nope"}`)))

	_, err := s.SearchService.GetItem(s.Ctx, id)
	s.Require().True(errors.Is(err, service.ErrNotFound))
	s.Require().Zero(s.faultCount())
}
