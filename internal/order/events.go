package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOrderCreated  = "OrderCreated"
	EventTypeStockReserved = "StockReserved"
	EventTypeStockRejected = "StockRejected"
)

// ItemPayload is the wire shape of one order line.
type ItemPayload struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// OrderCreatedEvent is published after the initial order write commits.
type OrderCreatedEvent struct {
	EventType     string        `json:"eventType"`
	OrderID       uuid.UUID     `json:"orderId"`
	CorrelationID uuid.UUID     `json:"correlationId"`
	CreatedAt     time.Time     `json:"createdAt"`
	Items         []ItemPayload `json:"items"`
}

// StockReservedEvent is the inventory side's success outcome.
type StockReservedEvent struct {
	EventType     string        `json:"eventType"`
	OrderID       uuid.UUID     `json:"orderId"`
	CorrelationID uuid.UUID     `json:"correlationId"`
	ReservedItems []ItemPayload `json:"reservedItems"`
	ReservedAt    time.Time     `json:"reservedAt"`
}

// StockRejectedEvent is the inventory side's failure outcome.
type StockRejectedEvent struct {
	EventType     string    `json:"eventType"`
	OrderID       uuid.UUID `json:"orderId"`
	CorrelationID uuid.UUID `json:"correlationId"`
	Reason        string    `json:"reason"`
	RejectedAt    time.Time `json:"rejectedAt"`
}

// StockResponse is the decoded form of an inbound stock event: exactly one of
// Reserved and Rejected is set, or neither for an event type this service
// does not know. Unknown carries the unrecognized discriminator so the caller
// can log and acknowledge without treating it as an error.
type StockResponse struct {
	Reserved *StockReservedEvent
	Rejected *StockRejectedEvent
	Unknown  string
}

// DecodeStockResponse turns a raw envelope into a typed StockResponse.
// Malformed JSON is a TransportError; an unrecognized eventType is not.
func DecodeStockResponse(raw []byte) (StockResponse, error) {
	var probe struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return StockResponse{}, &TransportError{Op: "decode stock response", Err: err}
	}

	switch probe.EventType {
	case EventTypeStockReserved:
		var event StockReservedEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return StockResponse{}, &TransportError{Op: "decode StockReserved", Err: err}
		}
		return StockResponse{Reserved: &event}, nil
	case EventTypeStockRejected:
		var event StockRejectedEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return StockResponse{}, &TransportError{Op: "decode StockRejected", Err: err}
		}
		return StockResponse{Rejected: &event}, nil
	default:
		return StockResponse{Unknown: probe.EventType}, nil
	}
}

func toItemPayloads(items []Item) []ItemPayload {
	payloads := make([]ItemPayload, 0, len(items))
	for _, item := range items {
		payloads = append(payloads, ItemPayload{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return payloads
}
