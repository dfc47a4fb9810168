package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/bidding/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type BidRepository interface {
	Create(ctx context.Context, tx pgx.Tx, bid *domain.Bid) error
	GetHighestAccepted(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*domain.Bid, error)
	ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error)
}

type bidRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewBidRepository(pool *pgxpool.Pool, logger *zap.Logger) BidRepository {
	return &bidRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/bid_repo"),
	}
}

const bidColumns = `id, auction_id, bidder, amount, bid_time, status`

func scanBid(row pgx.Row) (*domain.Bid, error) {
	var b domain.Bid
	var status string

	if err := row.Scan(&b.ID, &b.AuctionID, &b.Bidder, &b.Amount, &b.BidTime, &status); err != nil {
		return nil, err
	}

	b.Status = domain.BidStatus(status)
	return &b, nil
}

func (r *bidRepo) Create(ctx context.Context, tx pgx.Tx, bid *domain.Bid) error {
	ctx, span := r.tracer.Start(ctx, "BidRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("bid_id", bid.ID.String()),
		attribute.String("auction_id", bid.AuctionID.String()),
		attribute.String("status", string(bid.Status)),
	)

	query := `
		INSERT INTO bids (id, auction_id, bidder, amount, bid_time, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := tx.Exec(ctx, query, bid.ID, bid.AuctionID, bid.Bidder, bid.Amount, bid.BidTime, string(bid.Status))
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error inserting bid",
			zap.String("auction_id", bid.AuctionID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("error inserting bid: %w", err)
	}

	return nil
}

// GetHighestAccepted returns the leading bid, earliest first on equal
// amounts, or nil when the auction has none.
func (r *bidRepo) GetHighestAccepted(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*domain.Bid, error) {
	ctx, span := r.tracer.Start(ctx, "BidRepository.GetHighestAccepted")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", auctionID.String()))

	query := `SELECT ` + bidColumns + `
		FROM bids
		WHERE auction_id = $1 AND status IN ('Accepted', 'AcceptedBelowReserve')
		ORDER BY amount DESC, bid_time ASC
		LIMIT 1
	`

	bid, err := scanBid(tx.QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error selecting highest bid: %w", err)
	}

	return bid, nil
}

func (r *bidRepo) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]domain.Bid, error) {
	ctx, span := r.tracer.Start(ctx, "BidRepository.ListByAuction")
	defer span.End()

	span.SetAttributes(attribute.String("auction_id", auctionID.String()))

	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = $1 ORDER BY bid_time DESC`

	rows, err := r.pool.Query(ctx, query, auctionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error selecting bids: %w", err)
	}
	defer rows.Close()

	bids := make([]domain.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning rows: %w", err)
		}
		bids = append(bids, *b)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return bids, nil
}
