package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderservice/internal/config"
	"orderservice/internal/platform/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Service is the saga coordinator's command surface: it creates orders,
// publishes the creation event, and drives confirm/cancel transitions when
// stock responses arrive.
type Service struct {
	store     Store
	publisher EventPublisher
	logger    observability.Logger
	tracer    observability.Tracer

	lookupBaseDelay     time.Duration
	conflictMaxAttempts int
}

func NewService(store Store, publisher EventPublisher, logger observability.Logger, tracer observability.Tracer) *Service {
	return &Service{
		store:               store,
		publisher:           publisher,
		logger:              logger,
		tracer:              tracer,
		lookupBaseDelay:     config.LookupBaseDelay,
		conflictMaxAttempts: config.ConflictMaxAttempts,
	}
}

// CreateOrder validates, persists, and announces a new order. The order is
// always created PENDING. If the write commits but the publish fails, the
// committed order is returned together with the publish error so the caller
// can report the degraded outcome.
func (s *Service) CreateOrder(ctx context.Context, customerID uuid.UUID, items []Item, address ShippingAddress, paymentReference string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order_create")
	defer span.End()

	o, err := New(customerID, items, address, paymentReference)
	if err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", o.ID.String()),
		attribute.Int("order.item_count", len(o.Items)),
	)

	if err := s.store.Create(ctx, o); err != nil {
		span.SetStatus(codes.Error, "order write failed")
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("Order created", zap.String("order_id", o.ID.String()), zap.String("customer_id", customerID.String()))

	if err := s.publisher.PublishOrderCreated(ctx, o); err != nil {
		span.SetStatus(codes.Error, "publish failed")
		return o, err
	}

	span.SetStatus(codes.Ok, "order created")
	return o, nil
}

// GetOrder is the plain read behind the query surface. No retry: a missing
// order is simply not found.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.store.GetByID(ctx, id)
}

// ConfirmOrder handles a StockReserved outcome for the given order.
func (s *Service) ConfirmOrder(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, "confirm", func(o *Order) bool {
		return o.Confirm()
	})
}

// CancelOrder handles a StockRejected outcome for the given order.
func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID, reason string) error {
	return s.transition(ctx, id, "cancel", func(o *Order) bool {
		return o.Cancel(reason)
	})
}

// transition loads the order with retry, applies the state change, and writes
// it back. A version conflict means another worker raced us on the same
// order; reload and reapply, which degrades to a no-op when the other worker
// already landed a terminal state.
func (s *Service) transition(ctx context.Context, id uuid.UUID, name string, apply func(*Order) bool) error {
	for attempt := 1; attempt <= s.conflictMaxAttempts; attempt++ {
		o, err := s.FindWithRetry(ctx, id, config.LookupMaxAttempts)
		if err != nil {
			return err
		}

		if !apply(o) {
			s.logger.Info("Order already in terminal state, skipping transition",
				zap.String("order_id", id.String()),
				zap.String("transition", name),
				zap.String("status", string(o.Status)),
			)
			return nil
		}

		err = s.store.Update(ctx, o)
		if err == nil {
			s.logger.Info("Order transitioned",
				zap.String("order_id", id.String()),
				zap.String("transition", name),
				zap.String("status", string(o.Status)),
			)
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return fmt.Errorf("%s order %s: %w", name, id, err)
		}

		s.logger.Warn("Concurrent update detected, reloading order",
			zap.String("order_id", id.String()),
			zap.String("transition", name),
			zap.Int("attempt", attempt),
		)
	}
	return fmt.Errorf("%s order %s after %d attempts: %w", name, id, s.conflictMaxAttempts, ErrConflict)
}

// FindWithRetry looks up an order that may have been written a moment ago by
// the HTTP path and may not be visible to this reader yet. It makes exactly
// maxAttempts lookups, sleeping lookupBaseDelay * attempt between them, and
// the sleep aborts promptly when ctx is cancelled.
func (s *Service) FindWithRetry(ctx context.Context, id uuid.UUID, maxAttempts int) (*Order, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		o, err := s.store.GetByID(ctx, id)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("lookup order %s: %w", id, err)
		}

		if attempt < maxAttempts {
			s.logger.Warn("Order not found, retrying",
				zap.String("order_id", id.String()),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
			)
			timer := time.NewTimer(s.lookupBaseDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil, fmt.Errorf("order %s not found after %d attempts: %w", id, maxAttempts, ErrNotFound)
}
