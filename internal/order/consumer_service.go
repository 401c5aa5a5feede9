package order

import (
	"context"
	"errors"

	"orderservice/internal/platform/kafka"
	"orderservice/internal/platform/observability"

	"go.uber.org/zap"
)

type ConsumerService interface {
	Start(ctx context.Context) error
}

// KafkaConsumerService pulls stock response messages and processes each to
// completion before reading the next. The reader is bound to a consumer
// group, so scaling out means running more service instances.
type KafkaConsumerService struct {
	consumer       kafka.Consumer
	messageHandler MessageHandler
	logger         observability.Logger
}

func NewConsumerService(consumer kafka.Consumer, messageHandler MessageHandler, logger observability.Logger) ConsumerService {
	return &KafkaConsumerService{
		consumer:       consumer,
		messageHandler: messageHandler,
		logger:         logger,
	}
}

func (c *KafkaConsumerService) Start(ctx context.Context) error {
	c.logger.Info("Stock response consumer started. Waiting for messages...")

	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context done, exiting Kafka read loop.", zap.Error(err))
				break
			}
			c.logger.Error("Error reading from Kafka", zap.Error(err))
			continue
		}

		if err := c.messageHandler.HandleStockResponse(ctx, *msg); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context done, abandoning in-flight message.", zap.Error(err))
				break
			}
			// The handler already routed the message to the dead-letter
			// topic or failed to; either way this delivery is finished.
			c.logger.Error("Stock response left unhandled", zap.Error(err))
		}
	}

	c.logger.Info("Consumer service finished. Shutting down...")
	return nil
}
