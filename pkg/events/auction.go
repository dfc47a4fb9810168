package events

import "time"

const (
	AuctionCreatedEvent        = "AuctionCreated"
	AuctionUpdatedEvent        = "AuctionUpdated"
	AuctionDeletedEvent        = "AuctionDeleted"
	AuctionHighBidUpdatedEvent = "AuctionHighBidUpdated"
	AuctionFinishedEvent       = "AuctionFinished"
	AuctionSettledEvent        = "AuctionSettled"
	BidPlacedEvent             = "BidPlaced"
)

type AuctionCreated struct {
	ID           string    `json:"id" validate:"required,uuid"`
	Seller       string    `json:"seller" validate:"required"`
	ReservePrice int64     `json:"reservePrice" validate:"gte=0"`
	Make         string    `json:"make" validate:"required"`
	Model        string    `json:"model" validate:"required"`
	Year         int       `json:"year" validate:"gt=0"`
	Color        string    `json:"color" validate:"required"`
	Mileage      int       `json:"mileage" validate:"gte=0"`
	ImageURL     string    `json:"imageUrl" validate:"required,url"`
	AuctionEnd   time.Time `json:"auctionEnd" validate:"required"`
	CreatedAt    time.Time `json:"createdAt"`
}

type AuctionUpdated struct {
	ID      string  `json:"id"`
	Make    *string `json:"make,omitempty"`
	Model   *string `json:"model,omitempty"`
	Year    *int    `json:"year,omitempty"`
	Color   *string `json:"color,omitempty"`
	Mileage *int    `json:"mileage,omitempty"`
}

type AuctionDeleted struct {
	ID string `json:"id"`
}

type AuctionHighBidUpdated struct {
	AuctionID      string `json:"auctionId"`
	CurrentHighBid int64  `json:"currentHighBid"`
}

type BidPlaced struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auctionId"`
	Bidder    string    `json:"bidder"`
	BidTime   time.Time `json:"bidTime"`
	Amount    int64     `json:"amount"`
	BidStatus string    `json:"bidStatus"`
}

type AuctionFinished struct {
	AuctionID string `json:"auctionId"`
	ItemSold  bool   `json:"itemSold"`
	Winner    string `json:"winner,omitempty"`
	Seller    string `json:"seller"`
	Amount    *int64 `json:"amount,omitempty"`
}

// AuctionSettled is the authoritative terminal state recorded by the
// auction service after it applied AuctionFinished.
type AuctionSettled struct {
	AuctionID  string `json:"auctionId"`
	Status     string `json:"status"`
	Winner     string `json:"winner,omitempty"`
	SoldAmount *int64 `json:"soldAmount,omitempty"`
	HighBid    *int64 `json:"currentHighBid,omitempty"`
}

const (
	BidStatusAccepted             = "Accepted"
	BidStatusAcceptedBelowReserve = "AcceptedBelowReserve"
	BidStatusTooLow               = "TooLow"
	BidStatusFinished             = "Finished"
)

// CountsTowardHighBid reports whether a bid with the given status tag can
// move the auction's high bid.
func CountsTowardHighBid(status string) bool {
	return status == BidStatusAccepted || status == BidStatusAcceptedBelowReserve
}
