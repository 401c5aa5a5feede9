package order

import (
	"context"
	"errors"
	"time"

	"orderservice/internal/config"
	"orderservice/internal/platform/kafka"
	"orderservice/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// MessageHandler defines the interface for processing inbound stock events.
type MessageHandler interface {
	HandleStockResponse(ctx context.Context, msg kafkago.Message) error
}

// StockResponseHandler dispatches StockReserved/StockRejected events to the
// order service. Failed messages are retried a bounded number of times and
// then handed to the dead-letter topic rather than dropped.
type StockResponseHandler struct {
	service    *Service
	deadLetter kafka.Producer
	logger     observability.Logger
	metrics    *ConsumerMetrics

	maxAttempts int
	retryDelay  time.Duration
}

func NewStockResponseHandler(service *Service, deadLetter kafka.Producer, logger observability.Logger, metrics *ConsumerMetrics) *StockResponseHandler {
	return &StockResponseHandler{
		service:     service,
		deadLetter:  deadLetter,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: config.HandlerMaxAttempts,
		retryDelay:  config.HandlerRetryDelay,
	}
}

// HandleStockResponse processes one inbound message. The transport delivers
// at least once, so everything downstream of the decode is idempotent.
func (h *StockResponseHandler) HandleStockResponse(ctx context.Context, msg kafkago.Message) error {
	msgCtx := h.extractTraceContext(ctx, msg.Headers)

	h.logger.Info("Stock response received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	resp, err := DecodeStockResponse(msg.Value)
	if err != nil {
		h.logger.Error("Malformed stock response envelope",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		h.metrics.Observe("malformed", "dead_letter", 0)
		return h.toDeadLetter(msgCtx, msg, err)
	}

	switch {
	case resp.Reserved != nil:
		return h.process(msgCtx, msg, EventTypeStockReserved, func(ctx context.Context) error {
			return h.service.ConfirmOrder(ctx, resp.Reserved.OrderID)
		})
	case resp.Rejected != nil:
		return h.process(msgCtx, msg, EventTypeStockRejected, func(ctx context.Context) error {
			return h.service.CancelOrder(ctx, resp.Rejected.OrderID, resp.Rejected.Reason)
		})
	default:
		// Unknown event types are acknowledged without action so new
		// producers can roll out ahead of this consumer.
		h.logger.Warn("Unknown stock response event type, ignoring",
			zap.String("event_type", resp.Unknown),
		)
		h.metrics.Observe(resp.Unknown, "ignored", 0)
		return nil
	}
}

func (h *StockResponseHandler) process(ctx context.Context, msg kafkago.Message, eventType string, handle func(context.Context) error) error {
	start := time.Now()

	var err error
	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		err = handle(ctx)
		if err == nil {
			h.metrics.Observe(eventType, "processed", time.Since(start))
			return nil
		}
		// A shutdown mid-message is not a processing failure; the transport
		// redelivers it on the next start.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		h.logger.Warn("Stock response handling failed",
			zap.Error(err),
			zap.String("event_type", eventType),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", h.maxAttempts),
		)

		// Not-found already burned the lookup retry budget and validation
		// failures never heal; only transient errors earn another attempt.
		if !retryable(err) || attempt == h.maxAttempts {
			break
		}

		timer := time.NewTimer(h.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	h.logger.Error("Stock response exhausted retries, routing to dead letter",
		zap.Error(err),
		zap.String("event_type", eventType),
	)
	h.metrics.Observe(eventType, "dead_letter", time.Since(start))
	return h.toDeadLetter(ctx, msg, err)
}

func retryable(err error) bool {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}
	return !errors.Is(err, ErrNotFound)
}

func (h *StockResponseHandler) toDeadLetter(ctx context.Context, msg kafkago.Message, cause error) error {
	dead := kafkago.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafkago.Header(nil), msg.Headers...), kafkago.Header{
			Key:   "x-dead-letter-reason",
			Value: []byte(cause.Error()),
		}),
	}
	if err := h.deadLetter.WriteMessage(ctx, dead); err != nil {
		h.logger.Error("Failed to write dead letter message",
			zap.Error(err),
			zap.ByteString("key", msg.Key),
		)
		return &TransportError{Op: "publish dead letter", Err: err}
	}
	return nil
}

// extractTraceContext extracts OpenTelemetry trace context from Kafka message headers
func (h *StockResponseHandler) extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	propagator := otel.GetTextMapPropagator()
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[string(header.Key)] = string(header.Value)
	}
	return propagator.Extract(ctx, carrier)
}
