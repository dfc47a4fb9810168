package service

import (
	"strings"

	"github.com/sakashimaa/go-auction-next/pkg/events"
)

// PatchAuctionCreated repairs an image URL that lacks a scheme. It reports
// false when there is nothing it knows how to fix.
func PatchAuctionCreated(ev events.AuctionCreated) (events.AuctionCreated, bool) {
	imageURL := strings.TrimSpace(ev.ImageURL)
	if imageURL == "" || strings.Contains(imageURL, "://") {
		return ev, false
	}

	ev.ImageURL = "https://" + strings.TrimPrefix(imageURL, "//")
	return ev, true
}
