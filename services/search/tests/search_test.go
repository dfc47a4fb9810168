package tests

import (
	"math"
	"time"

	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/services/search/internal/domain"
)

func (s *IntegrationTestSuite) TestSearch_FiltersAndPaging() {
	now := time.Now()
	ford := s.create("alice", "Ford", now.Add(2*time.Hour), 1)
	s.create("alice", "Audi", now.Add(48*time.Hour), 2)
	s.create("carol", "Bugatti", now.Add(72*time.Hour), 3)
	done := s.create("carol", "Mazda", now.Add(-time.Hour), 4)

	amount := int64(1000)
	s.deliver(events.TopicBidEvents, events.AuctionFinishedEvent, 5, events.AuctionFinished{
		AuctionID: done.String(),
		ItemSold:  true,
		Winner:    "bob",
		Seller:    "carol",
		Amount:    &amount,
	})

	all, err := s.SearchService.Search(s.Ctx, domain.SearchParams{PageSize: 10})
	s.Require().NoError(err)
	s.Require().EqualValues(4, all.TotalCount)
	s.Require().Equal("Mazda", all.Results[0].Make)

	live, err := s.SearchService.Search(s.Ctx, domain.SearchParams{FilterBy: domain.FilterLive, OrderBy: domain.OrderMake, PageSize: 10})
	s.Require().NoError(err)
	s.Require().EqualValues(3, live.TotalCount)
	s.Require().Equal("Audi", live.Results[0].Make)

	soon, err := s.SearchService.Search(s.Ctx, domain.SearchParams{FilterBy: domain.FilterEndingSoon})
	s.Require().NoError(err)
	s.Require().Len(soon.Results, 1)
	s.Require().Equal(ford, soon.Results[0].ID)

	won, err := s.SearchService.Search(s.Ctx, domain.SearchParams{Winner: "bob", FilterBy: domain.FilterFinished})
	s.Require().NoError(err)
	s.Require().Len(won.Results, 1)
	s.Require().Equal(done, won.Results[0].ID)

	bySeller, err := s.SearchService.Search(s.Ctx, domain.SearchParams{Seller: "alice", SearchTerm: "aud"})
	s.Require().NoError(err)
	s.Require().Len(bySeller.Results, 1)
	s.Require().Equal("Audi", bySeller.Results[0].Make)

	page2, err := s.SearchService.Search(s.Ctx, domain.SearchParams{PageNumber: 2, PageSize: 3})
	s.Require().NoError(err)
	s.Require().EqualValues(2, page2.PageCount)
	s.Require().Len(page2.Results, 1)
}

func (s *IntegrationTestSuite) TestSearch_TermWildcardsMatchLiterally() {
	end := time.Now().Add(time.Hour)
	literal := s.create("alice", "Rolls_Royce", end, 1)
	s.create("alice", "RollsXRoyce", end, 2)

	underscore, err := s.SearchService.Search(s.Ctx, domain.SearchParams{SearchTerm: "s_R"})
	s.Require().NoError(err)
	s.Require().Len(underscore.Results, 1)
	s.Require().Equal(literal, underscore.Results[0].ID)

	percent, err := s.SearchService.Search(s.Ctx, domain.SearchParams{SearchTerm: "%"})
	s.Require().NoError(err)
	s.Require().Zero(percent.TotalCount)

	deep, err := s.SearchService.Search(s.Ctx, domain.SearchParams{PageNumber: math.MaxInt, PageSize: 100})
	s.Require().NoError(err)
	s.Require().EqualValues(2, deep.TotalCount)
	s.Require().Empty(deep.Results)
}
