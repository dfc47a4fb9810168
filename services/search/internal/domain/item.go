package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/events"
)

const (
	StatusLive          = "Live"
	StatusFinished      = "Finished"
	StatusReserveNotMet = "ReserveNotMet"
)

const (
	FieldMake    = "make"
	FieldModel   = "model"
	FieldYear    = "year"
	FieldColor   = "color"
	FieldMileage = "mileage"
)

// Item is the denormalized search document for one auction. Rows created by
// events that overtook AuctionCreated stay hidden until Created is set.
type Item struct {
	ID             uuid.UUID        `json:"id"`
	Seller         string           `json:"seller"`
	ReservePrice   int64            `json:"reservePrice"`
	AuctionEnd     time.Time        `json:"auctionEnd"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	ImageURL       string           `json:"imageUrl"`
	Make           string           `json:"make"`
	Model          string           `json:"model"`
	Year           int              `json:"year"`
	Color          string           `json:"color"`
	Mileage        int              `json:"mileage"`
	FieldVersions  map[string]int64 `json:"-"`
	CurrentHighBid *int64           `json:"currentHighBid,omitempty"`
	Status         string           `json:"status"`
	Winner         *string          `json:"winner,omitempty"`
	SoldAmount     *int64           `json:"soldAmount,omitempty"`
	Created        bool             `json:"-"`
	Deleted        bool             `json:"-"`
}

func NewStub(id uuid.UUID) *Item {
	return &Item{
		ID:            id,
		Status:        StatusLive,
		FieldVersions: map[string]int64{},
	}
}

func (it *Item) Visible() bool {
	return it.Created && !it.Deleted
}

// ApplyCreated fills the identity facet and every descriptive field not
// already written by a later event. seq is the event's envelope sequence.
func (it *Item) ApplyCreated(ev *events.AuctionCreated, seq int64) bool {
	if it.Deleted {
		return false
	}

	changed := !it.Created ||
		it.Seller != ev.Seller ||
		it.ReservePrice != ev.ReservePrice ||
		!it.AuctionEnd.Equal(ev.AuctionEnd) ||
		it.ImageURL != ev.ImageURL

	it.Created = true
	it.Seller = ev.Seller
	it.ReservePrice = ev.ReservePrice
	it.AuctionEnd = ev.AuctionEnd
	it.ImageURL = ev.ImageURL
	if !ev.CreatedAt.IsZero() {
		it.CreatedAt = ev.CreatedAt
	}

	if it.setString(FieldMake, &it.Make, &ev.Make, seq) {
		changed = true
	}
	if it.setString(FieldModel, &it.Model, &ev.Model, seq) {
		changed = true
	}
	if it.setInt(FieldYear, &it.Year, &ev.Year, seq) {
		changed = true
	}
	if it.setString(FieldColor, &it.Color, &ev.Color, seq) {
		changed = true
	}
	if it.setInt(FieldMileage, &it.Mileage, &ev.Mileage, seq) {
		changed = true
	}

	return changed
}

// ApplyUpdated merges the fields present in ev, each only if no newer event
// already set it.
func (it *Item) ApplyUpdated(ev *events.AuctionUpdated, seq int64) bool {
	if it.Deleted {
		return false
	}

	changed := false
	if it.setString(FieldMake, &it.Make, ev.Make, seq) {
		changed = true
	}
	if it.setString(FieldModel, &it.Model, ev.Model, seq) {
		changed = true
	}
	if it.setInt(FieldYear, &it.Year, ev.Year, seq) {
		changed = true
	}
	if it.setString(FieldColor, &it.Color, ev.Color, seq) {
		changed = true
	}
	if it.setInt(FieldMileage, &it.Mileage, ev.Mileage, seq) {
		changed = true
	}

	return changed
}

func (it *Item) ApplyDeleted() bool {
	if it.Deleted {
		return false
	}

	it.Deleted = true
	return true
}

// RaiseHighBid only ever moves the high bid up.
func (it *Item) RaiseHighBid(amount int64) bool {
	if it.CurrentHighBid != nil && *it.CurrentHighBid >= amount {
		return false
	}

	it.CurrentHighBid = &amount
	return true
}

func (it *Item) ApplyBidPlaced(ev *events.BidPlaced) bool {
	if !events.CountsTowardHighBid(ev.BidStatus) {
		return false
	}

	return it.RaiseHighBid(ev.Amount)
}

// ApplyFinished records the finisher's verdict. The first terminal status
// wins; later ones only contribute their high bid.
func (it *Item) ApplyFinished(ev *events.AuctionFinished) bool {
	changed := false
	if ev.Amount != nil && it.RaiseHighBid(*ev.Amount) {
		changed = true
	}

	if it.Status != StatusLive {
		return changed
	}

	if ev.ItemSold && ev.Winner != "" && ev.Amount != nil {
		winner, amount := ev.Winner, *ev.Amount
		it.Status = StatusFinished
		it.Winner = &winner
		it.SoldAmount = &amount
	} else {
		it.Status = StatusReserveNotMet
	}

	return true
}

func (it *Item) ApplySettled(ev *events.AuctionSettled) bool {
	changed := false
	if ev.HighBid != nil && it.RaiseHighBid(*ev.HighBid) {
		changed = true
	}

	if it.Status != StatusLive {
		return changed
	}

	it.Status = ev.Status
	if ev.Winner != "" {
		winner := ev.Winner
		it.Winner = &winner
	}
	if ev.SoldAmount != nil {
		amount := *ev.SoldAmount
		it.SoldAmount = &amount
	}

	return true
}

// claim reports whether seq may write field and whether the stored version
// moved.
func (it *Item) claim(field string, seq int64) (ok, advanced bool) {
	if it.FieldVersions == nil {
		it.FieldVersions = map[string]int64{}
	}

	prev := it.FieldVersions[field]
	if seq < prev {
		return false, false
	}

	it.FieldVersions[field] = seq
	return true, seq != prev
}

func (it *Item) setString(field string, dst *string, v *string, seq int64) bool {
	if v == nil {
		return false
	}

	ok, advanced := it.claim(field, seq)
	if !ok {
		return false
	}

	changed := *dst != *v || advanced
	*dst = *v
	return changed
}

func (it *Item) setInt(field string, dst *int, v *int, seq int64) bool {
	if v == nil {
		return false
	}

	ok, advanced := it.claim(field, seq)
	if !ok {
		return false
	}

	changed := *dst != *v || advanced
	*dst = *v
	return changed
}
