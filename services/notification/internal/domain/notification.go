package domain

import (
	"encoding/json"
	"time"
)

// Notification is what subscribers of the stream receive for one event.
type Notification struct {
	Type       string          `json:"type"`
	AuctionID  string          `json:"auctionId"`
	EventID    int64           `json:"eventId"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}
