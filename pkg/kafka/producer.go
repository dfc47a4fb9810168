package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Producer interface {
	Publish(ctx context.Context, topic, key string, body []byte) error
	Close() error
}

type producer struct {
	syncProducer sarama.SyncProducer
}

func NewProducer(brokers []string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}

	return &producer{syncProducer: p}, nil
}

// Publish sends body keyed by key, so every message of one aggregate lands
// on the same partition.
func (p *producer) Publish(ctx context.Context, topic, key string, body []byte) error {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(body),
		Headers: headers,
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	// SyncProducer does not take a context.
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, _, err := p.syncProducer.SendMessage(msg); err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}

	return nil
}

func (p *producer) Close() error {
	return p.syncProducer.Close()
}
