package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sakashimaa/go-auction-next/pkg/dispatch"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"github.com/sakashimaa/go-auction-next/services/search/internal/domain"
	"github.com/sakashimaa/go-auction-next/services/search/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Source identifies this service in event envelopes.
const Source = "search-service"

// Invalidator drops cached copies of an item after it changed.
type Invalidator interface {
	Invalidate(ctx context.Context, id uuid.UUID)
}

// Projector folds auction and bid events into the items table. Each event is
// applied under the item's row lock through a pure merge on domain.Item.
type Projector struct {
	repo        repository.ItemRepository
	pool        *pgxpool.Pool
	invalidator Invalidator
	logger      *zap.Logger
	tracer      trace.Tracer
	applied     *prometheus.CounterVec
}

func NewProjector(repo repository.ItemRepository, pool *pgxpool.Pool, logger *zap.Logger) *Projector {
	return &Projector{
		repo:   repo,
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("search-projector"),
	}
}

func (p *Projector) WithInvalidator(inv Invalidator) *Projector {
	p.invalidator = inv
	return p
}

func (p *Projector) WithMetrics(reg prometheus.Registerer) *Projector {
	p.applied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "search_events_applied_total",
		Help: "Events folded into the search model, by type and whether they changed it.",
	}, []string{"event", "changed"})
	reg.MustRegister(p.applied)

	return p
}

// Register binds the projector's handlers on r.
func (p *Projector) Register(r *dispatch.Registry) *dispatch.Registry {
	return r.
		Register(events.AuctionCreatedEvent, p.handleAuctionCreated).
		Register(events.AuctionUpdatedEvent, p.handleAuctionUpdated).
		Register(events.AuctionDeletedEvent, p.handleAuctionDeleted).
		Register(events.BidPlacedEvent, p.handleBidPlaced).
		Register(events.AuctionHighBidUpdatedEvent, p.handleHighBidUpdated).
		Register(events.AuctionFinishedEvent, p.handleAuctionFinished).
		Register(events.AuctionSettledEvent, p.handleAuctionSettled)
}

// Apply runs merge against the locked item identified by rawID, creating a
// hidden stub first if the item is unknown.
func (p *Projector) Apply(ctx context.Context, event, rawID string, merge func(*domain.Item) bool) error {
	ctx, span := p.tracer.Start(ctx, "Projector.Apply")
	defer span.End()

	span.SetAttributes(
		attribute.String("event.type", event),
		attribute.String("item_id", rawID),
	)

	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("%w: item id %q", events.ErrPoisonMessage, rawID)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				p.logger,
				"Error rolling back transaction",
				zap.Error(err),
				zap.String("method_name", "Apply"),
			)
		}
	}()

	if err := p.repo.EnsureStub(ctx, tx, id); err != nil {
		return err
	}

	item, err := p.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	changed := merge(item)
	p.count(event, changed)

	if !changed {
		mylogger.Debug(ctx, p.logger, "Event left item unchanged",
			zap.String("event_type", event),
			zap.String("item_id", rawID),
		)
		return nil
	}

	if err := p.repo.Save(ctx, tx, item); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit: %w", err)
	}

	if p.invalidator != nil {
		p.invalidator.Invalidate(ctx, id)
	}

	return nil
}

func (p *Projector) count(event string, changed bool) {
	if p.applied == nil {
		return
	}

	label := "false"
	if changed {
		label = "true"
	}
	p.applied.WithLabelValues(event, label).Inc()
}

func (p *Projector) handleAuctionCreated(ctx context.Context, env events.Envelope) error {
	var ev events.AuctionCreated
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}

	if err := events.ValidateAuctionCreated(&ev); err != nil {
		return err
	}

	seq := env.Sequence()
	return p.Apply(ctx, env.Event, ev.ID, func(item *domain.Item) bool {
		return item.ApplyCreated(&ev, seq)
	})
}

func (p *Projector) handleAuctionUpdated(ctx context.Context, env events.Envelope) error {
	var ev events.AuctionUpdated
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}

	seq := env.Sequence()
	return p.Apply(ctx, env.Event, ev.ID, func(item *domain.Item) bool {
		return item.ApplyUpdated(&ev, seq)
	})
}

func (p *Projector) handleAuctionDeleted(ctx context.Context, env events.Envelope) error {
	var ev events.AuctionDeleted
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}

	return p.Apply(ctx, env.Event, ev.ID, func(item *domain.Item) bool {
		return item.ApplyDeleted()
	})
}

func (p *Projector) handleBidPlaced(ctx context.Context, env events.Envelope) error {
	var ev events.BidPlaced
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}

	if !events.CountsTowardHighBid(ev.BidStatus) {
		return nil
	}

	return p.Apply(ctx, env.Event, ev.AuctionID, func(item *domain.Item) bool {
		return item.ApplyBidPlaced(&ev)
	})
}

func (p *Projector) handleHighBidUpdated(ctx context.Context, env events.Envelope) error {
	var ev events.AuctionHighBidUpdated
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}

	return p.Apply(ctx, env.Event, ev.AuctionID, func(item *domain.Item) bool {
		return item.RaiseHighBid(ev.CurrentHighBid)
	})
}

func (p *Projector) handleAuctionFinished(ctx context.Context, env events.Envelope) error {
	var ev events.AuctionFinished
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}

	return p.Apply(ctx, env.Event, ev.AuctionID, func(item *domain.Item) bool {
		return item.ApplyFinished(&ev)
	})
}

func (p *Projector) handleAuctionSettled(ctx context.Context, env events.Envelope) error {
	var ev events.AuctionSettled
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}

	return p.Apply(ctx, env.Event, ev.AuctionID, func(item *domain.Item) bool {
		return item.ApplySettled(&ev)
	})
}
