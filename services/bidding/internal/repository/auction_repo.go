package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type AuctionRepository interface {
	Upsert(ctx context.Context, auction *domain.Auction) error
	InsertIfAbsent(ctx context.Context, tx pgx.Tx, auction *domain.Auction) error
	MarkDeleted(ctx context.Context, id uuid.UUID) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Auction, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ListDue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	MarkFinished(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Auction, error)
}

type auctionRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewAuctionRepository(pool *pgxpool.Pool, logger *zap.Logger) AuctionRepository {
	return &auctionRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/bidding_auction_repo"),
	}
}

// Upsert applies AuctionCreated. A tombstoned row is left alone.
func (r *auctionRepo) Upsert(ctx context.Context, auction *domain.Auction) error {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.Upsert")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", auction.ID.String()))

	query := `
		INSERT INTO auctions (id, seller, reserve_price, auction_end)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET seller = EXCLUDED.seller,
			reserve_price = EXCLUDED.reserve_price,
			auction_end = EXCLUDED.auction_end,
			updated_at = NOW()
		WHERE NOT auctions.deleted
	`

	_, err := r.pool.Exec(ctx, query, auction.ID, auction.Seller, auction.ReservePrice, auction.AuctionEnd)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error upserting auction: %w", err)
	}

	return nil
}

// InsertIfAbsent seeds the projection from the fallback summary without
// overwriting anything the consumer already wrote.
func (r *auctionRepo) InsertIfAbsent(ctx context.Context, tx pgx.Tx, auction *domain.Auction) error {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.InsertIfAbsent")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", auction.ID.String()))

	query := `
		INSERT INTO auctions (id, seller, reserve_price, auction_end, finished)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := tx.Exec(ctx, query, auction.ID, auction.Seller, auction.ReservePrice, auction.AuctionEnd, auction.Finished)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error seeding auction: %w", err)
	}

	return nil
}

// MarkDeleted tombstones the auction, creating the row if AuctionDeleted
// arrived first.
func (r *auctionRepo) MarkDeleted(ctx context.Context, id uuid.UUID) error {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.MarkDeleted")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	query := `
		INSERT INTO auctions (id, auction_end, deleted)
		VALUES ($1, NOW(), TRUE)
		ON CONFLICT (id) DO UPDATE
		SET deleted = TRUE, updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error tombstoning auction: %w", err)
	}

	return nil
}

func (r *auctionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Auction, error) {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	query := `
		SELECT id, seller, reserve_price, auction_end, finished, deleted
		FROM auctions
		WHERE id = $1
		FOR UPDATE
	`

	var a domain.Auction
	err := tx.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Seller,
		&a.ReservePrice,
		&a.AuctionEnd,
		&a.Finished,
		&a.Deleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuctionNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error locking auction: %w", err)
	}

	return &a, nil
}

// Exists reports whether a projection row, tombstones included, is present.
func (r *auctionRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.Exists")
	defer span.End()

	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error checking auction: %w", err)
	}

	return exists, nil
}

// ListDue returns live auctions whose end has passed.
func (r *auctionRepo) ListDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.ListDue")
	defer span.End()

	query := `
		SELECT id
		FROM auctions
		WHERE auction_end <= $1 AND NOT finished AND NOT deleted
		ORDER BY auction_end
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error selecting due auctions: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error scanning due auctions: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(ids)))
	return ids, nil
}

// MarkFinished flips the finished marker if nobody else did. It returns nil
// when another finisher already won or the auction is not due.
func (r *auctionRepo) MarkFinished(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Auction, error) {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.MarkFinished")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	query := `
		UPDATE auctions
		SET finished = TRUE, updated_at = NOW()
		WHERE id = $1 AND finished = FALSE AND NOT deleted AND auction_end <= NOW()
		RETURNING id, seller, reserve_price, auction_end, finished, deleted
	`

	var a domain.Auction
	err := tx.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Seller,
		&a.ReservePrice,
		&a.AuctionEnd,
		&a.Finished,
		&a.Deleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error marking auction finished: %w", err)
	}

	return &a, nil
}
