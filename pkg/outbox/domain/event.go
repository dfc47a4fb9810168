package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakashimaa/go-auction-next/pkg/events"
)

type OutboxEvent struct {
	Id            int64           `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	CreatedAt     time.Time       `db:"created_at"`
	Attempts      int64           `db:"attempts"`
	LastError     *string         `db:"last_error"`
	NextAttemptAt time.Time       `db:"next_attempt_at"`
	Topic         string          `db:"topic"`
}

// NewOutboxEvent serializes env as the entry payload. The aggregate id is
// also the broker message key.
func NewOutboxEvent(topic, aggregateType, aggregateID string, env events.Envelope) (*OutboxEvent, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", env.Event, err)
	}

	return &OutboxEvent{
		Topic:         topic,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     env.Event,
		Payload:       payload,
	}, nil
}
