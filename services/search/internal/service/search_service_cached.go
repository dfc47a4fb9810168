package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/search/internal/domain"
	"go.uber.org/zap"
)

type CachedSearchService struct {
	next        SearchService
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedSearchService(next SearchService, redisClient *redis.Client, logger *zap.Logger) *CachedSearchService {
	return &CachedSearchService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    time.Minute * 10,
		logger:      logger,
	}
}

func itemKey(id uuid.UUID) string {
	return fmt.Sprintf("item:%s", id)
}

func (s *CachedSearchService) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResult, error) {
	return s.next.Search(ctx, params)
}

func (s *CachedSearchService) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	key := itemKey(id)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err == nil {
		var item domain.Item
		if err := json.Unmarshal(val, &item); err == nil {
			return &item, nil
		}
	}

	item, err := s.next.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(item); err == nil {
		if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
			mylogger.Warn(ctx, s.logger, "Failed to cache item", zap.String("item_id", id.String()), zap.Error(err))
		}
	}

	return item, nil
}

// Invalidate drops the cached item. The projector calls it after every change.
func (s *CachedSearchService) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := s.redisClient.Del(ctx, itemKey(id)).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to invalidate cached item", zap.String("item_id", id.String()), zap.Error(err))
	}
}
