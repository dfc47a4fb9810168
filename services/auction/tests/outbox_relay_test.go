package tests

import (
	"github.com/sakashimaa/go-auction-next/pkg/events"
)

func (s *IntegrationTestSuite) TestRelay_PreservesPerAuctionOrder() {
	auction := s.createAuction("alice", 0)
	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, auction.ID, 100))
	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, auction.ID, 200))

	s.relayAll()

	var forAuction []published
	for _, m := range s.Publisher.messages {
		if m.key == auction.ID.String() {
			forAuction = append(forAuction, m)
		}
	}

	s.Require().Len(forAuction, 3)
	s.Require().Equal(events.AuctionCreatedEvent, forAuction[0].env.Event)
	s.Require().Equal(events.AuctionHighBidUpdatedEvent, forAuction[1].env.Event)
	s.Require().Equal(events.AuctionHighBidUpdatedEvent, forAuction[2].env.Event)
	s.Require().Less(forAuction[0].env.EventID, forAuction[1].env.EventID)
	s.Require().Less(forAuction[1].env.EventID, forAuction[2].env.EventID)
}

func (s *IntegrationTestSuite) TestRelay_FailedAggregateIsHeldBack() {
	stuck := s.createAuction("alice", 0)
	healthy := s.createAuction("carol", 0)
	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, stuck.ID, 100))

	s.Publisher.failKeys[stuck.ID.String()] = true
	s.relayAll()

	s.Require().Len(s.Publisher.byEvent(events.AuctionCreatedEvent), 1)
	s.Require().Equal(healthy.ID.String(), s.Publisher.byEvent(events.AuctionCreatedEvent)[0].key)

	var attempts, pending int
	err := s.DbPool.QueryRow(s.Ctx,
		`SELECT COALESCE(MAX(attempts), 0), COUNT(*) FROM outbox WHERE aggregate_id = $1`,
		stuck.ID.String(),
	).Scan(&attempts, &pending)
	s.Require().NoError(err)
	s.Require().Equal(1, attempts)
	s.Require().Equal(2, pending)

	// The failed head is in backoff, so its successor must not overtake it.
	delete(s.Publisher.failKeys, stuck.ID.String())
	s.relayAll()
	s.Require().Empty(s.Publisher.byEvent(events.AuctionHighBidUpdatedEvent))

	_, err = s.DbPool.Exec(s.Ctx, `UPDATE outbox SET next_attempt_at = NOW() - INTERVAL '1 second'`)
	s.Require().NoError(err)
	s.relayAll()

	s.Require().Len(s.Publisher.byEvent(events.AuctionCreatedEvent), 2)
	s.Require().Len(s.Publisher.byEvent(events.AuctionHighBidUpdatedEvent), 1)
	s.Require().Equal(0, s.outboxCount(events.AuctionHighBidUpdatedEvent))
}

func (s *IntegrationTestSuite) TestRelay_ConcurrentRelayNeverOvertakesLockedHead() {
	busy := s.createAuction("alice", 0)
	s.Require().NoError(s.AuctionService.ApplyHighBid(s.Ctx, busy.ID, 100))
	other := s.createAuction("carol", 0)

	// Another relay replica holds the head of busy mid-publish.
	tx, err := s.DbPool.Begin(s.Ctx)
	s.Require().NoError(err)
	defer tx.Rollback(s.Ctx)

	held, err := s.OutboxRepo.GetPendingEvents(s.Ctx, tx, 1)
	s.Require().NoError(err)
	s.Require().Len(held, 1)
	s.Require().Equal(busy.ID.String(), held[0].AggregateID)
	s.Require().Equal(events.AuctionCreatedEvent, held[0].EventType)

	s.relayAll()

	for _, m := range s.Publisher.messages {
		s.Require().Equal(other.ID.String(), m.key)
	}
	s.Require().Len(s.Publisher.byEvent(events.AuctionCreatedEvent), 1)
	s.Require().Equal(1, s.outboxCount(events.AuctionHighBidUpdatedEvent))

	s.Require().NoError(tx.Rollback(s.Ctx))
	s.relayAll()

	var forBusy []published
	for _, m := range s.Publisher.messages {
		if m.key == busy.ID.String() {
			forBusy = append(forBusy, m)
		}
	}
	s.Require().Len(forBusy, 2)
	s.Require().Equal(events.AuctionCreatedEvent, forBusy[0].env.Event)
	s.Require().Equal(events.AuctionHighBidUpdatedEvent, forBusy[1].env.Event)
}
