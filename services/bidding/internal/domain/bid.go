package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/events"
)

type BidStatus string

const (
	BidStatusAccepted             BidStatus = events.BidStatusAccepted
	BidStatusAcceptedBelowReserve BidStatus = events.BidStatusAcceptedBelowReserve
	BidStatusTooLow               BidStatus = events.BidStatusTooLow
	BidStatusFinished             BidStatus = events.BidStatusFinished
)

type Bid struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auctionId"`
	Bidder    string    `json:"bidder"`
	BidTime   time.Time `json:"bidTime"`
	Amount    int64     `json:"amount"`
	Status    BidStatus `json:"bidStatus"`
}

type PlaceBidInput struct {
	AuctionID string `json:"auctionId" validate:"required,uuid"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
}

// Auction is the bidding service's local view of an auction.
type Auction struct {
	ID           uuid.UUID
	Seller       string
	ReservePrice int64
	AuctionEnd   time.Time
	Finished     bool
	Deleted      bool
}

// AuctionSummary is the auction service's answer to the fallback query.
type AuctionSummary struct {
	ID           uuid.UUID `json:"id"`
	Seller       string    `json:"seller"`
	ReservePrice int64     `json:"reservePrice"`
	AuctionEnd   time.Time `json:"auctionEnd"`
	Status       string    `json:"status"`
}

func (s *AuctionSummary) ToAuction() *Auction {
	return &Auction{
		ID:           s.ID,
		Seller:       s.Seller,
		ReservePrice: s.ReservePrice,
		AuctionEnd:   s.AuctionEnd,
		Finished:     s.Status != "" && s.Status != "Live",
	}
}

// ClassifyBid decides the status of a new bid. prior is the current highest
// accepted bid, nil when there is none. A bid equal to the reserve is still
// below it.
func ClassifyBid(auction *Auction, prior *Bid, amount int64, now time.Time) BidStatus {
	if auction.Finished || !now.Before(auction.AuctionEnd) {
		return BidStatusFinished
	}

	if prior != nil && amount <= prior.Amount {
		return BidStatusTooLow
	}

	if auction.ReservePrice == 0 || amount > auction.ReservePrice {
		return BidStatusAccepted
	}

	return BidStatusAcceptedBelowReserve
}

// Outcome builds the AuctionFinished verdict from the winning bid, nil when
// nobody bid.
func Outcome(auction *Auction, winner *Bid) events.AuctionFinished {
	finished := events.AuctionFinished{
		AuctionID: auction.ID.String(),
		Seller:    auction.Seller,
	}

	if winner == nil {
		return finished
	}

	amount := winner.Amount
	finished.Winner = winner.Bidder
	finished.Amount = &amount
	finished.ItemSold = winner.Status == BidStatusAccepted

	return finished
}
