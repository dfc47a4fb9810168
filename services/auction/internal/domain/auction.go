package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusLive          Status = "Live"
	StatusFinished      Status = "Finished"
	StatusReserveNotMet Status = "ReserveNotMet"
)

type Auction struct {
	ID             uuid.UUID `json:"id"`
	Seller         string    `json:"seller"`
	ReservePrice   int64     `json:"reservePrice"`
	CurrentHighBid *int64    `json:"currentHighBid,omitempty"`
	AuctionEnd     time.Time `json:"auctionEnd"`
	Status         Status    `json:"status"`
	Winner         *string   `json:"winner,omitempty"`
	SoldAmount     *int64    `json:"soldAmount,omitempty"`
	Item
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is the descriptive facet of an auction.
type Item struct {
	Make     string `json:"make"`
	Model    string `json:"model"`
	Year     int    `json:"year"`
	Color    string `json:"color"`
	Mileage  int    `json:"mileage"`
	ImageURL string `json:"imageUrl"`
}

type CreateAuctionInput struct {
	Make         string    `json:"make" validate:"required"`
	Model        string    `json:"model" validate:"required"`
	Year         int       `json:"year" validate:"required,gt=1900"`
	Color        string    `json:"color" validate:"required"`
	Mileage      int       `json:"mileage" validate:"gte=0"`
	ImageURL     string    `json:"imageUrl" validate:"required"`
	ReservePrice int64     `json:"reservePrice" validate:"gte=0"`
	AuctionEnd   time.Time `json:"auctionEnd" validate:"required"`
}

type UpdateAuctionInput struct {
	Make    *string `json:"make" validate:"omitempty,min=1"`
	Model   *string `json:"model" validate:"omitempty,min=1"`
	Year    *int    `json:"year" validate:"omitempty,gt=1900"`
	Color   *string `json:"color" validate:"omitempty,min=1"`
	Mileage *int    `json:"mileage" validate:"omitempty,gte=0"`
}

func (in *UpdateAuctionInput) Empty() bool {
	return in.Make == nil && in.Model == nil && in.Year == nil && in.Color == nil && in.Mileage == nil
}

// Apply copies the set fields of in onto item.
func (in *UpdateAuctionInput) Apply(item *Item) {
	if in.Make != nil {
		item.Make = *in.Make
	}
	if in.Model != nil {
		item.Model = *in.Model
	}
	if in.Year != nil {
		item.Year = *in.Year
	}
	if in.Color != nil {
		item.Color = *in.Color
	}
	if in.Mileage != nil {
		item.Mileage = *in.Mileage
	}
}

// Summary is what the bidding service needs to admit bids when it has not
// yet seen AuctionCreated.
type Summary struct {
	ID           uuid.UUID `json:"id"`
	Seller       string    `json:"seller"`
	ReservePrice int64     `json:"reservePrice"`
	AuctionEnd   time.Time `json:"auctionEnd"`
	Status       Status    `json:"status"`
}

func (a *Auction) Summary() Summary {
	return Summary{
		ID:           a.ID,
		Seller:       a.Seller,
		ReservePrice: a.ReservePrice,
		AuctionEnd:   a.AuctionEnd,
		Status:       a.Status,
	}
}

// Settlement is the terminal outcome FinalizeAuction writes.
type Settlement struct {
	Status     Status
	Winner     *string
	SoldAmount *int64
	HighBid    *int64
}

// Settle derives the terminal state from the finisher's verdict. Winner and
// sold amount are recorded only when the item sold.
func Settle(itemSold bool, winner string, amount *int64) Settlement {
	if itemSold && winner != "" && amount != nil {
		w := winner
		a := *amount
		return Settlement{
			Status:     StatusFinished,
			Winner:     &w,
			SoldAmount: &a,
			HighBid:    &a,
		}
	}

	s := Settlement{Status: StatusReserveNotMet}
	if amount != nil {
		a := *amount
		s.HighBid = &a
	}

	return s
}
