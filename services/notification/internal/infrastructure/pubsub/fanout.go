package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/notification/internal/domain"
	"go.uber.org/zap"
)

const Channel = "auction_notifications"

type Fanout interface {
	Publish(ctx context.Context, n domain.Notification) error
	Subscribe(ctx context.Context) *redis.PubSub
}

type redisFanout struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisFanout spreads notifications over a redis channel so every replica
// can serve every stream client.
func NewRedisFanout(client *redis.Client, logger *zap.Logger) Fanout {
	return &redisFanout{
		client:  client,
		channel: Channel,
		logger:  logger,
	}
}

func (f *redisFanout) Publish(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	receivers, err := f.client.Publish(ctx, f.channel, data).Result()
	if err != nil {
		mylogger.Error(ctx, f.logger, "Error publishing notification",
			zap.String("type", n.Type),
			zap.Error(err),
		)
		return fmt.Errorf("publish notification: %w", err)
	}

	mylogger.Debug(ctx, f.logger, "Notification published",
		zap.String("type", n.Type),
		zap.String("auction_id", n.AuctionID),
		zap.Int64("receivers", receivers),
	)

	return nil
}

func (f *redisFanout) Subscribe(ctx context.Context) *redis.PubSub {
	return f.client.Subscribe(ctx, f.channel)
}
