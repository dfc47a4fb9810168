package rabbitmq

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const dialAttempts = 5

// Publisher publishes to a fanout exchange named after the topic. Each
// consumer group binds its own durable queue to that exchange.
type Publisher struct {
	conn *amqp.Connection

	mu       sync.Mutex
	ch       *amqp.Channel
	declared map[string]bool
}

func Dial(url string) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)

	for i := 0; i < dialAttempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}

		log.Printf("Failed to connect to RabbitMQ (attempt %d/%d): %v", i+1, dialAttempts, err)
		time.Sleep(2 * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &Publisher{
		conn:     conn,
		ch:       ch,
		declared: make(map[string]bool),
	}, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil)
}

func (p *Publisher) Publish(ctx context.Context, topic, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[topic] {
		if err := declareExchange(p.ch, topic); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", topic, err)
		}
		p.declared[topic] = true
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := amqp.Table{}
	for k, v := range carrier {
		headers[k] = v
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		topic,
		key,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Headers:      headers,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for broker confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message on %s", topic)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
	}

	return p.conn.Close()
}
