package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

type Item struct {
	ProductID uuid.UUID
	Quantity  int
}

type ShippingAddress struct {
	Country    string
	City       string
	Street     string
	PostalCode string
}

// Order is the aggregate root of the order-side saga. Status starts at
// PENDING and moves exactly once to CONFIRMED or CANCELLED; both are
// terminal. Version backs the store's optimistic concurrency check.
type Order struct {
	ID                 uuid.UUID
	CustomerID         uuid.UUID
	Status             Status
	Items              []Item
	ShippingAddress    ShippingAddress
	PaymentReference   string
	CancellationReason string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// New validates the creation input and builds a PENDING order. Caller-supplied
// status is not accepted anywhere on this path.
func New(customerID uuid.UUID, items []Item, address ShippingAddress, paymentReference string) (*Order, error) {
	if customerID == uuid.Nil {
		return nil, &ValidationError{Field: "customerId", Message: "customer id is required"}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Message: "order must contain at least one item"}
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, &ValidationError{Field: "items.productId", Message: "product id is required"}
		}
		if item.Quantity < 1 {
			return nil, &ValidationError{Field: "items.quantity", Message: "quantity must be at least 1"}
		}
	}
	if err := validateAddress(address); err != nil {
		return nil, err
	}
	if strings.TrimSpace(paymentReference) == "" {
		return nil, &ValidationError{Field: "paymentReference", Message: "payment reference is required"}
	}

	now := time.Now().UTC()
	return &Order{
		ID:               uuid.New(),
		CustomerID:       customerID,
		Status:           StatusPending,
		Items:            append([]Item(nil), items...),
		ShippingAddress:  address,
		PaymentReference: paymentReference,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func validateAddress(address ShippingAddress) error {
	fields := []struct {
		name  string
		value string
	}{
		{"shippingAddress.country", address.Country},
		{"shippingAddress.city", address.City},
		{"shippingAddress.street", address.Street},
		{"shippingAddress.postalCode", address.PostalCode},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name, Message: "field is required"}
		}
	}
	return nil
}

// Confirm moves a PENDING order to CONFIRMED and reports whether a transition
// happened. Calling it on a terminal order is a no-op, which makes duplicate
// StockReserved deliveries harmless.
func (o *Order) Confirm() bool {
	if o.Status != StatusPending {
		return false
	}
	o.Status = StatusConfirmed
	o.UpdatedAt = time.Now().UTC()
	return true
}

// Cancel moves a PENDING order to CANCELLED, recording the reason. Terminal
// orders are left untouched, reason included.
func (o *Order) Cancel(reason string) bool {
	if o.Status != StatusPending {
		return false
	}
	o.Status = StatusCancelled
	o.CancellationReason = reason
	o.UpdatedAt = time.Now().UTC()
	return true
}

// Terminal reports whether the order has reached a final state.
func (o *Order) Terminal() bool {
	return o.Status == StatusConfirmed || o.Status == StatusCancelled
}

// Clone returns an independent copy so stores can hand out snapshots without
// sharing the item slice.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	return &c
}
