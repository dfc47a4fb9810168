package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-auction-next/services/search/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/search/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SearchService interface {
	Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResult, error)
	GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error)
}

type searchService struct {
	repo   repository.ItemRepository
	logger *zap.Logger
	tracer trace.Tracer
}

func NewSearchService(repo repository.ItemRepository, logger *zap.Logger) SearchService {
	return &searchService{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("search-service"),
	}
}

func (s *searchService) Search(ctx context.Context, params domain.SearchParams) (*domain.SearchResult, error) {
	ctx, span := s.tracer.Start(ctx, "SearchService.Search")
	defer span.End()

	params.Normalize()

	items, total, err := s.repo.Search(ctx, params, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return domain.NewSearchResult(items, total, params.PageSize), nil
}

func (s *searchService) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return s.repo.GetByID(ctx, id)
}
