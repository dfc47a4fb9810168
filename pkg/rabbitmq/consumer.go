package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, topic string, body []byte) error

type Consumer struct {
	url     string
	group   string
	topics  []string
	handler HandlerFunc
	logger  *zap.Logger
}

func NewConsumer(url, group string, topics []string, handler HandlerFunc, logger *zap.Logger) *Consumer {
	return &Consumer{
		url:     url,
		group:   group,
		topics:  topics,
		handler: handler,
		logger:  logger,
	}
}

// Run binds one durable queue per topic for the group and consumes with
// manual acks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := Dial(c.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries := make(chan amqp.Delivery)
	for _, topic := range c.topics {
		if err := declareExchange(ch, topic); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", topic, err)
		}

		queue := c.group + "." + topic
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}

		if err := ch.QueueBind(queue, "", topic, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queue, err)
		}

		msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to register consumer on %s: %w", queue, err)
		}

		go func(msgs <-chan amqp.Delivery) {
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-ctx.Done():
					return
				}
			}
		}(msgs)
	}

	tracer := otel.Tracer("pkg/rabbitmq/consumer")
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, c.logger, "Context cancelled, shutting down consumer")
			return nil
		case amqpErr := <-closed:
			return fmt.Errorf("rabbitmq connection closed: %v", amqpErr)
		case d := <-deliveries:
			carrier := propagation.MapCarrier{}
			for k, v := range d.Headers {
				if s, ok := v.(string); ok {
					carrier[k] = s
				}
			}

			msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)
			msgCtx, span := tracer.Start(msgCtx, "rabbitmq_process", trace.WithSpanKind(trace.SpanKindConsumer))

			if err := c.handler(msgCtx, d.Exchange, d.Body); err != nil {
				span.RecordError(err)
				mylogger.Error(msgCtx, c.logger, "Failed to process message",
					zap.String("exchange", d.Exchange),
					zap.Error(err),
				)
				_ = d.Nack(false, true)
			} else {
				_ = d.Ack(false)
			}

			span.End()
		}
	}
}
