package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer writes a single message to a fixed topic.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer pulls the next message from a subscription.
type Consumer interface {
	ReadMessage(ctx context.Context) (*kafka.Message, error)
	Close() error
}
