package order

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store is the durable keyed storage for orders. Implementations may be
// eventually consistent: a Create is not guaranteed to be visible to a
// GetByID from another goroutine immediately, which is why event handlers go
// through Service.FindWithRetry instead of reading directly.
//
// Update must perform an optimistic version check and return ErrConflict when
// the stored version no longer matches, so concurrent confirm/cancel races on
// the same order resolve to exactly one effective transition.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
}

// MemoryStore keeps orders in a map guarded by a RWMutex. It backs local runs
// without a database and the test suite.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uuid.UUID]*Order)}
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != o.Version {
		return ErrConflict
	}

	o.Version++
	s.orders[o.ID] = o.Clone()
	return nil
}
