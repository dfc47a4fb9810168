package domain

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func created(id uuid.UUID) *events.AuctionCreated {
	return &events.AuctionCreated{
		ID:           id.String(),
		Seller:       "alice",
		ReservePrice: 20000,
		Make:         "Ford",
		Model:        "GT",
		Year:         2020,
		Color:        "White",
		Mileage:      50000,
		ImageURL:     "https://cdn.example.com/gt.jpg",
		AuctionEnd:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestApplyCreated_Idempotent(t *testing.T) {
	id := uuid.New()
	item := NewStub(id)

	require.True(t, item.ApplyCreated(created(id), 1))
	require.False(t, item.ApplyCreated(created(id), 1))
	require.True(t, item.Visible())
	require.Equal(t, "Ford", item.Make)
}

func TestApplyUpdated_BeforeCreatedKeepsNewerField(t *testing.T) {
	id := uuid.New()
	item := NewStub(id)

	require.True(t, item.ApplyUpdated(&events.AuctionUpdated{ID: id.String(), Color: ptr("Red")}, 5))
	require.False(t, item.Visible())

	require.True(t, item.ApplyCreated(created(id), 1))
	require.Equal(t, "Red", item.Color)
	require.Equal(t, "Ford", item.Make)
	require.Equal(t, 50000, item.Mileage)
}

func TestApplyUpdated_StaleUpdateIgnored(t *testing.T) {
	id := uuid.New()
	item := NewStub(id)
	item.ApplyCreated(created(id), 1)

	require.True(t, item.ApplyUpdated(&events.AuctionUpdated{Color: ptr("Red")}, 7))
	require.False(t, item.ApplyUpdated(&events.AuctionUpdated{Color: ptr("Blue")}, 4))
	require.Equal(t, "Red", item.Color)
}

func TestApplyUpdated_SameValueAdvancesVersion(t *testing.T) {
	item := NewStub(uuid.New())

	require.True(t, item.ApplyUpdated(&events.AuctionUpdated{Color: ptr("Red")}, 3))
	require.True(t, item.ApplyUpdated(&events.AuctionUpdated{Color: ptr("Red")}, 9))
	require.False(t, item.ApplyUpdated(&events.AuctionUpdated{Color: ptr("Blue")}, 6))
	require.Equal(t, "Red", item.Color)
}

func TestApplyDeleted_SuppressesLaterCreate(t *testing.T) {
	id := uuid.New()
	item := NewStub(id)

	require.True(t, item.ApplyDeleted())
	require.False(t, item.ApplyDeleted())
	require.False(t, item.ApplyCreated(created(id), 1))
	require.False(t, item.Visible())
}

func TestRaiseHighBid_Monotonic(t *testing.T) {
	item := NewStub(uuid.New())

	require.True(t, item.ApplyBidPlaced(&events.BidPlaced{Amount: 300, BidStatus: events.BidStatusAccepted}))
	require.False(t, item.ApplyBidPlaced(&events.BidPlaced{Amount: 200, BidStatus: events.BidStatusAccepted}))
	require.False(t, item.ApplyBidPlaced(&events.BidPlaced{Amount: 900, BidStatus: events.BidStatusTooLow}))
	require.False(t, item.ApplyBidPlaced(&events.BidPlaced{Amount: 900, BidStatus: events.BidStatusFinished}))
	require.True(t, item.ApplyBidPlaced(&events.BidPlaced{Amount: 400, BidStatus: events.BidStatusAcceptedBelowReserve}))
	require.EqualValues(t, 400, *item.CurrentHighBid)
}

func TestApplyFinished_TerminalStatus(t *testing.T) {
	item := NewStub(uuid.New())

	require.True(t, item.ApplyFinished(&events.AuctionFinished{ItemSold: true, Winner: "bob", Amount: ptr[int64](25000)}))
	require.Equal(t, StatusFinished, item.Status)
	require.Equal(t, "bob", *item.Winner)
	require.EqualValues(t, 25000, *item.SoldAmount)

	require.False(t, item.ApplyFinished(&events.AuctionFinished{ItemSold: true, Winner: "bob", Amount: ptr[int64](25000)}))
	require.False(t, item.ApplySettled(&events.AuctionSettled{Status: StatusReserveNotMet}))
	require.Equal(t, StatusFinished, item.Status)
}

func TestApplyFinished_ReserveNotMet(t *testing.T) {
	item := NewStub(uuid.New())

	require.True(t, item.ApplyFinished(&events.AuctionFinished{ItemSold: false, Winner: "bob", Amount: ptr[int64](15000)}))
	require.Equal(t, StatusReserveNotMet, item.Status)
	require.Nil(t, item.Winner)
	require.Nil(t, item.SoldAmount)
	require.EqualValues(t, 15000, *item.CurrentHighBid)
}

// Every permutation of the same events must converge on the same document.
func TestMerge_OrderIndependent(t *testing.T) {
	id := uuid.New()
	steps := []func(*Item){
		func(it *Item) { it.ApplyCreated(created(id), 1) },
		func(it *Item) { it.ApplyUpdated(&events.AuctionUpdated{Color: ptr("Red")}, 2) },
		func(it *Item) { it.ApplyBidPlaced(&events.BidPlaced{Amount: 21000, BidStatus: events.BidStatusAccepted}) },
		func(it *Item) {
			it.ApplyFinished(&events.AuctionFinished{ItemSold: true, Winner: "bob", Amount: ptr[int64](21000)})
		},
	}

	var want *Item
	permute(len(steps), func(order []int) {
		item := NewStub(id)
		for _, i := range order {
			steps[i](item)
		}
		// Replaying everything again must be a no-op.
		for _, i := range order {
			steps[i](item)
		}

		if want == nil {
			want = item
			return
		}
		require.Equal(t, want, item, "order %v", order)
	})

	require.Equal(t, "Red", want.Color)
	require.Equal(t, StatusFinished, want.Status)
	require.EqualValues(t, 21000, *want.CurrentHighBid)
}

func permute(n int, visit func([]int)) {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	var rec func(k int)
	rec = func(k int) {
		if k == n {
			visit(append([]int(nil), order...))
			return
		}
		for i := k; i < n; i++ {
			order[k], order[i] = order[i], order[k]
			rec(k + 1)
			order[k], order[i] = order[i], order[k]
		}
	}
	rec(0)
}

func TestSearchParams_Normalize(t *testing.T) {
	p := SearchParams{}
	p.Normalize()
	require.Equal(t, 1, p.PageNumber)
	require.Equal(t, 4, p.PageSize)
	require.Equal(t, OrderEnd, p.OrderBy)
	require.Equal(t, 0, p.Offset())

	require.EqualValues(t, 3, NewSearchResult(nil, 9, 4).PageCount)
	require.EqualValues(t, 2, NewSearchResult(nil, 8, 4).PageCount)
}

func TestSearchParams_NormalizeCapsPaging(t *testing.T) {
	p := SearchParams{PageNumber: math.MaxInt, PageSize: 100}
	p.Normalize()

	require.Equal(t, MaxPageNumber, p.PageNumber)
	require.Equal(t, (MaxPageNumber-1)*100, p.Offset())

	empty := SearchParams{}
	empty.Normalize()
	require.Equal(t, 1, empty.PageNumber)
	require.Zero(t, empty.Offset())
}
