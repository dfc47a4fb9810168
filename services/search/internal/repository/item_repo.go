package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/search/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ItemRepository interface {
	EnsureStub(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Item, error)
	Save(ctx context.Context, tx pgx.Tx, item *domain.Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	Search(ctx context.Context, params domain.SearchParams, now time.Time) ([]domain.Item, int64, error)
}

type itemRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewItemRepository(pool *pgxpool.Pool, logger *zap.Logger) ItemRepository {
	return &itemRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/item_repo"),
	}
}

const itemColumns = `
	id, seller, reserve_price, auction_end, created_at, updated_at, image_url,
	make, model, year, color, mileage, field_versions, current_high_bid,
	status, winner, sold_amount, created, deleted
`

func scanItem(row pgx.Row) (*domain.Item, error) {
	var it domain.Item

	err := row.Scan(
		&it.ID,
		&it.Seller,
		&it.ReservePrice,
		&it.AuctionEnd,
		&it.CreatedAt,
		&it.UpdatedAt,
		&it.ImageURL,
		&it.Make,
		&it.Model,
		&it.Year,
		&it.Color,
		&it.Mileage,
		&it.FieldVersions,
		&it.CurrentHighBid,
		&it.Status,
		&it.Winner,
		&it.SoldAmount,
		&it.Created,
		&it.Deleted,
	)
	if err != nil {
		return nil, err
	}

	if it.FieldVersions == nil {
		it.FieldVersions = map[string]int64{}
	}

	return &it, nil
}

func (r *itemRepo) EnsureStub(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.EnsureStub")
	defer span.End()

	span.SetAttributes(attribute.String("item_id", id.String()))

	if _, err := tx.Exec(ctx, `INSERT INTO items (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error inserting item stub: %w", err)
	}

	return nil
}

func (r *itemRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Item, error) {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.GetForUpdate")
	defer span.End()

	span.SetAttributes(attribute.String("item_id", id.String()))

	item, err := scanItem(tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error locking item: %w", err)
	}

	return item, nil
}

func (r *itemRepo) Save(ctx context.Context, tx pgx.Tx, item *domain.Item) error {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.Save")
	defer span.End()

	span.SetAttributes(attribute.String("item_id", item.ID.String()))

	query := `
		UPDATE items
		SET seller = $2,
			reserve_price = $3,
			auction_end = $4,
			created_at = $5,
			image_url = $6,
			make = $7,
			model = $8,
			year = $9,
			color = $10,
			mileage = $11,
			field_versions = $12,
			current_high_bid = $13,
			status = $14,
			winner = $15,
			sold_amount = $16,
			created = $17,
			deleted = $18,
			updated_at = NOW()
		WHERE id = $1
	`

	_, err := tx.Exec(
		ctx,
		query,
		item.ID,
		item.Seller,
		item.ReservePrice,
		item.AuctionEnd,
		item.CreatedAt,
		item.ImageURL,
		item.Make,
		item.Model,
		item.Year,
		item.Color,
		item.Mileage,
		item.FieldVersions,
		item.CurrentHighBid,
		item.Status,
		item.Winner,
		item.SoldAmount,
		item.Created,
		item.Deleted,
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error saving item",
			zap.String("item_id", item.ID.String()),
			zap.Error(err),
		)

		return fmt.Errorf("error saving item: %w", err)
	}

	return nil
}

// GetByID returns a visible item only.
func (r *itemRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("item_id", id.String()))

	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1 AND created AND NOT deleted`

	item, err := scanItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("error getting item: %w", err)
	}

	return item, nil
}

func (r *itemRepo) Search(ctx context.Context, params domain.SearchParams, now time.Time) ([]domain.Item, int64, error) {
	ctx, span := r.tracer.Start(ctx, "ItemRepository.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("search_term", params.SearchTerm),
		attribute.String("filter_by", params.FilterBy),
		attribute.String("order_by", params.OrderBy),
		attribute.Int("page_number", params.PageNumber),
	)

	where, args := buildFilter(params, now)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE `+where, args...).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("error counting items: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM items WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		itemColumns, where, orderClause(params.OrderBy), len(args)+1, len(args)+2,
	)
	args = append(args, params.PageSize, params.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("error searching items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0, params.PageSize)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			span.RecordError(err)
			return nil, 0, fmt.Errorf("error scanning rows: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	span.SetAttributes(attribute.Int64("total", total))
	return items, total, nil
}

func buildFilter(params domain.SearchParams, now time.Time) (string, []any) {
	conds := []string{"created", "NOT deleted"}
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if term := strings.TrimSpace(params.SearchTerm); term != "" {
		p := arg(containsPattern(term))
		conds = append(conds, fmt.Sprintf("(make ILIKE %[1]s OR model ILIKE %[1]s OR color ILIKE %[1]s)", p))
	}
	if params.Seller != "" {
		conds = append(conds, "seller = "+arg(params.Seller))
	}
	if params.Winner != "" {
		conds = append(conds, "winner = "+arg(params.Winner))
	}

	switch params.FilterBy {
	case domain.FilterFinished:
		conds = append(conds, "auction_end < "+arg(now))
	case domain.FilterEndingSoon:
		conds = append(conds, fmt.Sprintf("auction_end > %s AND auction_end < %s", arg(now), arg(now.Add(domain.EndingSoonWindow))))
	case domain.FilterLive:
		conds = append(conds, "auction_end > "+arg(now))
	}

	return strings.Join(conds, " AND "), args
}

// likeEscaper escapes LIKE wildcards with backslash, the default escape
// character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches term literally anywhere in the column.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func orderClause(orderBy string) string {
	switch orderBy {
	case domain.OrderMake:
		return "make ASC, model ASC, id"
	case domain.OrderNew:
		return "created_at DESC, id"
	default:
		return "auction_end ASC, id"
	}
}
