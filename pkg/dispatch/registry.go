// Package dispatch routes decoded envelopes to per-event handlers and applies
// the consumer failure policy.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sakashimaa/go-auction-next/pkg/events"
	"github.com/sakashimaa/go-auction-next/pkg/mylogger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, env events.Envelope) error

// FaultPublisher forwards a recoverable rejection to the fault handler.
type FaultPublisher interface {
	PublishFault(ctx context.Context, fault events.Fault) error
}

type Registry struct {
	consumer   string
	handlers   map[string]Handler
	faults     FaultPublisher
	logger     *zap.Logger
	maxRetries uint64
	maxElapsed time.Duration
}

func NewRegistry(consumer string, logger *zap.Logger) *Registry {
	return &Registry{
		consumer:   consumer,
		handlers:   make(map[string]Handler),
		logger:     logger,
		maxRetries: 3,
		maxElapsed: 10 * time.Second,
	}
}

func (r *Registry) WithFaults(faults FaultPublisher) *Registry {
	r.faults = faults
	return r
}

func (r *Registry) WithRetry(maxRetries uint64, maxElapsed time.Duration) *Registry {
	r.maxRetries = maxRetries
	r.maxElapsed = maxElapsed
	return r
}

func (r *Registry) Register(event string, h Handler) *Registry {
	r.handlers[event] = h
	return r
}

// Handle decodes body and runs the matching handler. It returns an error only
// when the message must be redelivered.
func (r *Registry) Handle(ctx context.Context, topic string, body []byte) error {
	env, err := events.Decode(body)
	if err != nil {
		mylogger.Error(ctx, r.logger, "Poison message, skipping",
			zap.String("topic", topic),
			zap.String("consumer", r.consumer),
			zap.Error(err),
		)
		return nil
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("event.type", env.Event),
		attribute.Int64("event.id", env.EventID),
		attribute.String("event.source", env.Source),
	)

	h, ok := r.handlers[env.Event]
	if !ok {
		mylogger.Debug(ctx, r.logger, "Ignored event type", zap.String("event_type", env.Event))
		return nil
	}

	err = r.runWithRetry(ctx, env, h)
	if err == nil {
		return nil
	}

	span.RecordError(err)

	fields := []zap.Field{
		zap.String("event_type", env.Event),
		zap.Int64("event_id", env.EventID),
		zap.String("source", env.Source),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, events.ErrRecoverableValidation):
		if r.faults == nil {
			mylogger.Error(ctx, r.logger, "Recoverable fault with no fault publisher, skipping", fields...)
			return nil
		}

		fault := events.Fault{
			FailedEvent: env,
			ErrorClass:  events.ClassOf(err),
			Message:     err.Error(),
			Consumer:    r.consumer,
		}
		if pubErr := r.faults.PublishFault(ctx, fault); pubErr != nil {
			return fmt.Errorf("publish fault for %s: %w", env.Event, pubErr)
		}

		mylogger.Warn(ctx, r.logger, "Event rejected, fault published", fields...)
		return nil
	case errors.Is(err, events.ErrPoisonMessage):
		mylogger.Error(ctx, r.logger, "Poison message, skipping", fields...)
		return nil
	case ctx.Err() != nil:
		return err
	default:
		mylogger.Error(ctx, r.logger, "Giving up on event after retries", fields...)
		return nil
	}
}

func (r *Registry) runWithRetry(ctx context.Context, env events.Envelope, h Handler) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = r.maxElapsed

	op := func() error {
		err := h(ctx, env)
		if err == nil {
			return nil
		}

		if errors.Is(err, events.ErrRecoverableValidation) || errors.Is(err, events.ErrPoisonMessage) {
			return backoff.Permanent(err)
		}

		mylogger.Warn(ctx, r.logger, "Handler failed, retrying",
			zap.String("event_type", env.Event),
			zap.Error(err),
		)
		return err
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx))
}
