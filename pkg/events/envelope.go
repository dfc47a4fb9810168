// Package events holds the wire contract shared by every service: the
// envelope all broker messages travel in and the typed payloads behind
// each event tag.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

const SchemaVersion = 1

const (
	TopicAuctionEvents = "auction_events"
	TopicBidEvents     = "bid_events"
	TopicFaults        = "auction_faults"
)

const (
	AggregateAuction = "Auction"
	AggregateFault   = "Fault"
)

// Envelope wraps every payload put on the broker. EventID is stamped by the
// outbox relay with the producing service's outbox id.
type Envelope struct {
	Event      string          `json:"event"`
	EventID    int64           `json:"event_id"`
	OriginID   int64           `json:"origin_id,omitempty"`
	Source     string          `json:"source"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	Redelivery int             `json:"redelivery"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(source, event string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}

	return Envelope{
		Event:      event,
		Source:     source,
		Version:    SchemaVersion,
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	}, nil
}

func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}

	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event tag", ErrPoisonMessage)
	}

	if env.Version > SchemaVersion {
		return Envelope{}, fmt.Errorf("%w: unsupported version %d", ErrPoisonMessage, env.Version)
	}

	return env, nil
}

// DecodePayload unmarshals the payload into v. A malformed payload is poison.
func (e Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrPoisonMessage, e.Event, err)
	}

	return nil
}

// Sequence is the ordering key for field-level merges. A republished event
// keeps the position of the event it replaces.
func (e Envelope) Sequence() int64 {
	if e.OriginID > 0 {
		return e.OriginID
	}

	return e.EventID
}
