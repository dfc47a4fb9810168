package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type AuctionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, auction *domain.Auction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Auction, error)
	List(ctx context.Context, updatedAfter *time.Time) ([]domain.Auction, error)
	UpdateItem(ctx context.Context, tx pgx.Tx, auction *domain.Auction) error
	Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	RaiseHighBid(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error)
	Finalize(ctx context.Context, tx pgx.Tx, id uuid.UUID, s domain.Settlement) (bool, error)
	ReplaceImageURL(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) error
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
		tracer: otel.Tracer("contract/auction_repo"),
	}
}

const auctionColumns = `
	id, seller, reserve_price, current_high_bid, auction_end, status, winner,
	sold_amount, make, model, year, color, mileage, image_url, version,
	created_at, updated_at
`

func scanAuction(row pgx.Row) (*domain.Auction, error) {
	var a domain.Auction
	var status string

	err := row.Scan(
		&a.ID,
		&a.Seller,
		&a.ReservePrice,
		&a.CurrentHighBid,
		&a.AuctionEnd,
		&status,
		&a.Winner,
		&a.SoldAmount,
		&a.Make,
		&a.Model,
		&a.Year,
		&a.Color,
		&a.Mileage,
		&a.ImageURL,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = domain.Status(status)
	return &a, nil
}

func (r *auctionRepo) Create(ctx context.Context, tx pgx.Tx, auction *domain.Auction) error {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("auction_id", auction.ID.String()),
		attribute.String("seller", auction.Seller),
	)

	query := `
		INSERT INTO auctions (id, seller, reserve_price, auction_end, status,
			make, model, year, color, mileage, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING version, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		auction.ID,
		auction.Seller,
		auction.ReservePrice,
		auction.AuctionEnd,
		string(auction.Status),
		auction.Make,
		auction.Model,
		auction.Year,
		auction.Color,
		auction.Mileage,
		auction.ImageURL,
	).Scan(&auction.Version, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error creating auction",
			zap.Error(err),
		)

		return fmt.Errorf("error creating auction: %w", err)
	}

	return nil
}

func (r *auctionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuctionNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error getting auction: %w", err)
	}

	return a, nil
}

func (r *auctionRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Auction, error) {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1 FOR UPDATE`

	a, err := scanAuction(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuctionNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error locking auction: %w", err)
	}

	return a, nil
}

func (r *auctionRepo) List(ctx context.Context, updatedAfter *time.Time) ([]domain.Auction, error) {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.List")
	defer span.End()

	query := `SELECT ` + auctionColumns + ` FROM auctions`
	var args []interface{}

	if updatedAfter != nil {
		span.SetAttributes(attribute.String("updated_after", updatedAfter.Format(time.RFC3339)))

		query += ` WHERE updated_at > $1`
		args = append(args, *updatedAfter)
	}

	query += ` ORDER BY make, model`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error listing auctions",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error selecting auctions: %w", err)
	}
	defer rows.Close()

	auctions := make([]domain.Auction, 0)
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning rows: %w", err)
		}
		auctions = append(auctions, *a)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return auctions, nil
}

// UpdateItem writes the descriptive facet if auction.Version is still
// current, then bumps the version.
func (r *auctionRepo) UpdateItem(ctx context.Context, tx pgx.Tx, auction *domain.Auction) error {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.UpdateItem")
	defer span.End()

	span.SetAttributes(
		attribute.String("auction_id", auction.ID.String()),
		attribute.Int64("version", auction.Version),
	)

	query := `
		UPDATE auctions
		SET make = $1, model = $2, year = $3, color = $4, mileage = $5,
			version = version + 1, updated_at = NOW()
		WHERE id = $6 AND version = $7
		RETURNING version, updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		auction.Make,
		auction.Model,
		auction.Year,
		auction.Color,
		auction.Mileage,
		auction.ID,
		auction.Version,
	).Scan(&auction.Version, &auction.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}

		span.RecordError(err)
		return fmt.Errorf("error updating auction: %w", err)
	}

	return nil
}

func (r *auctionRepo) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.Delete")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	commandTag, err := tx.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("error deleting auction: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrAuctionNotFound
	}

	return nil
}

// RaiseHighBid moves current_high_bid up to amount. It reports false when the
// auction is no longer live or already has an equal or higher bid.
func (r *auctionRepo) RaiseHighBid(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.RaiseHighBid")
	defer span.End()

	span.SetAttributes(
		attribute.String("auction_id", id.String()),
		attribute.Int64("amount", amount),
	)

	query := `
		UPDATE auctions
		SET current_high_bid = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
			AND status = 'Live'
			AND (current_high_bid IS NULL OR current_high_bid < $2)
	`

	commandTag, err := tx.Exec(ctx, query, id, amount)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error raising high bid: %w", err)
	}

	return commandTag.RowsAffected() == 1, nil
}

// Finalize records the terminal state of a live auction. It reports false
// when the auction is unknown or already settled.
func (r *auctionRepo) Finalize(ctx context.Context, tx pgx.Tx, id uuid.UUID, s domain.Settlement) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.Finalize")
	defer span.End()

	span.SetAttributes(
		attribute.String("auction_id", id.String()),
		attribute.String("status", string(s.Status)),
	)

	query := `
		UPDATE auctions
		SET status = $2,
			winner = $3,
			sold_amount = $4,
			current_high_bid = GREATEST(current_high_bid, $5),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = 'Live'
	`

	commandTag, err := tx.Exec(ctx, query, id, string(s.Status), s.Winner, s.SoldAmount, s.HighBid)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("error finalizing auction: %w", err)
	}

	return commandTag.RowsAffected() == 1, nil
}

func (r *auctionRepo) ReplaceImageURL(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) error {
	ctx, span := r.tracer.Start(ctx, "AuctionRepository.ReplaceImageURL")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", id.String()))

	query := `
		UPDATE auctions
		SET image_url = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND image_url = $2
	`

	if _, err := tx.Exec(ctx, query, id, from, to); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error replacing image url: %w", err)
	}

	return nil
}
