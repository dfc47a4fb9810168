package tests

import (
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/go-auction-next/services/bidding/internal/domain"
)

func (s *IntegrationTestSuite) TestPlaceBid_ConcurrentEqualBidsAdmitOne() {
	const bidders = 8

	id := s.projectAuction("alice", 0, time.Now().Add(time.Hour))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[domain.BidStatus]int{}
	)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(bidder string) {
			defer wg.Done()

			bid, err := s.BidService.PlaceBid(s.Ctx, id, bidder, 500)
			if !s.NoError(err) {
				return
			}

			mu.Lock()
			statuses[bid.Status]++
			mu.Unlock()
		}(fmt.Sprintf("bidder-%d", i))
	}
	wg.Wait()

	s.Require().Equal(1, statuses[domain.BidStatusAccepted]+statuses[domain.BidStatusAcceptedBelowReserve])
	s.Require().Equal(bidders-1, statuses[domain.BidStatusTooLow])

	bids, err := s.BidService.GetBidsForAuction(s.Ctx, id)
	s.Require().NoError(err)
	s.Require().Len(bids, bidders)
}
