package order

import (
	"context"
	"encoding/json"
	"time"

	"orderservice/internal/platform/kafka"
	"orderservice/internal/platform/observability"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher emits the OrderCreated event that starts the inventory leg
// of the saga.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, o *Order) error
}

// KafkaEventPublisher writes OrderCreated envelopes to the creation topic.
type KafkaEventPublisher struct {
	producer kafka.Producer
	logger   observability.Logger
}

func NewEventPublisher(producer kafka.Producer, logger observability.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		producer: producer,
		logger:   logger,
	}
}

// PublishOrderCreated builds and sends the envelope. The correlation id is
// fresh per publish; a failure surfaces to the caller, which leaves the order
// committed but unannounced — an accepted at-least-once gap reconciled
// outside this service.
func (p *KafkaEventPublisher) PublishOrderCreated(ctx context.Context, o *Order) error {
	event := OrderCreatedEvent{
		EventType:     EventTypeOrderCreated,
		OrderID:       o.ID,
		CorrelationID: uuid.New(),
		CreatedAt:     time.Now().UTC(),
		Items:         toItemPayloads(o.Items),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return &TransportError{Op: "serialize OrderCreated", Err: err}
	}

	msg := kafkago.Message{
		Key:   []byte(o.ID.String()),
		Value: payload,
	}
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		p.logger.Error("Failed to publish OrderCreated event",
			zap.Error(err),
			zap.String("order_id", o.ID.String()),
		)
		return &TransportError{Op: "publish OrderCreated", Err: err}
	}

	p.logger.Info("Published OrderCreated event",
		zap.String("order_id", o.ID.String()),
		zap.String("correlation_id", event.CorrelationID.String()),
	)
	return nil
}
