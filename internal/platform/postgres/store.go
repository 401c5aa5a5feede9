package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"orderservice/internal/order"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id            UUID PRIMARY KEY,
	customer_id         UUID NOT NULL,
	status              TEXT NOT NULL,
	items               JSONB NOT NULL,
	shipping_address    JSONB NOT NULL,
	payment_reference   TEXT NOT NULL,
	cancellation_reason TEXT,
	version             BIGINT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
)`

// Store persists orders in Postgres with an optimistic version column.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the orders table if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

type itemRow struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

type addressRow struct {
	Country    string `json:"country"`
	City       string `json:"city"`
	Street     string `json:"street"`
	PostalCode string `json:"postalCode"`
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT order_id, customer_id, status, items, shipping_address,
		       payment_reference, cancellation_reason, version, created_at, updated_at
		FROM orders WHERE order_id = $1`, id)

	var (
		o            order.Order
		status       string
		itemsJSON    []byte
		addressJSON  []byte
		cancelReason *string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &status, &itemsJSON, &addressJSON,
		&o.PaymentReference, &cancelReason, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}

	o.Status = order.Status(status)
	if cancelReason != nil {
		o.CancellationReason = *cancelReason
	}

	var items []itemRow
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	for _, item := range items {
		o.Items = append(o.Items, order.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	var address addressRow
	if err := json.Unmarshal(addressJSON, &address); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	o.ShippingAddress = order.ShippingAddress(address)

	return &o, nil
}

func (s *Store) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, addressJSON, err := encodeOrder(o)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (order_id, customer_id, status, items, shipping_address,
		                    payment_reference, cancellation_reason, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9, $10)`,
		o.ID, o.CustomerID, string(o.Status), itemsJSON, addressJSON,
		o.PaymentReference, nullable(o.CancellationReason), o.Version, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// Update writes the transition only if the stored version still matches the
// one the caller read, then bumps the caller's version to match the row.
func (s *Store) Update(ctx context.Context, o *order.Order) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $2, cancellation_reason = $3, updated_at = $4, version = version + 1
		WHERE order_id = $1 AND version = $5`,
		o.ID, string(o.Status), nullable(o.CancellationReason), o.UpdatedAt, o.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id = $1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order existence: %w", err)
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrConflict
	}

	o.Version++
	return nil
}

func encodeOrder(o *order.Order) (itemsJSON, addressJSON []byte, err error) {
	items := make([]itemRow, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, itemRow{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	itemsJSON, err = json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("encode order items: %w", err)
	}
	addressJSON, err = json.Marshal(addressRow(o.ShippingAddress))
	if err != nil {
		return nil, nil, fmt.Errorf("encode shipping address: %w", err)
	}
	return itemsJSON, addressJSON, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
