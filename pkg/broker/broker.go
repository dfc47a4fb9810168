// Package broker picks the message transport configured for a service.
package broker

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/kafka"
	"github.com/sakashimaa/go-auction-next/pkg/rabbitmq"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, topic, key string, body []byte) error
	Close() error
}

// MessageHandler receives the raw body of one broker message.
type MessageHandler func(ctx context.Context, topic string, body []byte) error

func NewPublisher(cfg config.Broker) (Publisher, error) {
	switch cfg.Kind {
	case config.BrokerKafka, "":
		return kafka.NewProducer(cfg.Kafka.Brokers)
	case config.BrokerRabbitMQ:
		return rabbitmq.NewPublisher(cfg.RabbitMQ.URL)
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}

// Consume blocks until ctx is cancelled, delivering messages from topics to
// handler under the given consumer group.
func Consume(
	ctx context.Context,
	cfg config.Broker,
	group string,
	topics []string,
	handler MessageHandler,
	logger *zap.Logger,
) error {
	switch cfg.Kind {
	case config.BrokerKafka, "":
		cg := kafka.NewConsumerGroup(
			cfg.Kafka.Brokers,
			group,
			topics,
			func(ctx context.Context, msg *sarama.ConsumerMessage) error {
				return handler(ctx, msg.Topic, msg.Value)
			},
			logger,
		)
		return cg.Run(ctx)
	case config.BrokerRabbitMQ:
		c := rabbitmq.NewConsumer(cfg.RabbitMQ.URL, group, topics, rabbitmq.HandlerFunc(handler), logger)
		return c.Run(ctx)
	default:
		return fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}
