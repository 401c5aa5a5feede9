package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type capturingPublisher struct {
	mu     sync.Mutex
	orders []*Order
	err    error
}

func (p *capturingPublisher) PublishOrderCreated(ctx context.Context, o *Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.orders = append(p.orders, o.Clone())
	return nil
}

func (p *capturingPublisher) published() []*Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Order(nil), p.orders...)
}

// delayedVisibilityStore hides an order until a configured number of lookups
// has happened, simulating a read path lagging behind the write path.
type delayedVisibilityStore struct {
	Store
	mu        sync.Mutex
	lookups   int
	visibleAt int
}

func (s *delayedVisibilityStore) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	s.mu.Lock()
	s.lookups++
	visible := s.lookups >= s.visibleAt
	s.mu.Unlock()

	if !visible {
		return nil, ErrNotFound
	}
	return s.Store.GetByID(ctx, id)
}

func (s *delayedVisibilityStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func newTestService(store Store, publisher EventPublisher) *Service {
	return NewService(store, publisher, zap.NewNop(), otel.Tracer("test"))
}

func TestCreateOrderPublishesEvent(t *testing.T) {
	store := NewMemoryStore()
	publisher := &capturingPublisher{}
	svc := newTestService(store, publisher)

	items := validItems()
	o, err := svc.CreateOrder(context.Background(), uuid.New(), items, validAddress(), "pay-123")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)

	published := publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, o.ID, published[0].ID)
	assert.Equal(t, items, published[0].Items)

	stored, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestCreateOrderValidationFailure(t *testing.T) {
	svc := newTestService(NewMemoryStore(), &capturingPublisher{})

	_, err := svc.CreateOrder(context.Background(), uuid.New(), nil, validAddress(), "pay-123")
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestCreateOrderPublishFailureLeavesOrderCommitted(t *testing.T) {
	store := NewMemoryStore()
	publisher := &capturingPublisher{err: &TransportError{Op: "publish OrderCreated", Err: errors.New("broker unreachable")}}
	svc := newTestService(store, publisher)

	o, err := svc.CreateOrder(context.Background(), uuid.New(), validItems(), validAddress(), "pay-123")
	require.Error(t, err)
	require.NotNil(t, o)

	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)

	stored, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestFindWithRetryEventualVisibility(t *testing.T) {
	backing := NewMemoryStore()
	o := newStoredOrder(t, backing)
	store := &delayedVisibilityStore{Store: backing, visibleAt: 3}
	svc := newTestService(store, &capturingPublisher{})

	start := time.Now()
	got, err := svc.FindWithRetry(context.Background(), o.ID, 3)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, 3, store.lookupCount())
	// Two backoff sleeps: base*1 + base*2.
	assert.GreaterOrEqual(t, elapsed, 290*time.Millisecond)
}

func TestFindWithRetryExhaustsAttempts(t *testing.T) {
	store := &delayedVisibilityStore{Store: NewMemoryStore(), visibleAt: 100}
	svc := newTestService(store, &capturingPublisher{})

	_, err := svc.FindWithRetry(context.Background(), uuid.New(), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 3, store.lookupCount())
}

func TestFindWithRetryCancellableBackoff(t *testing.T) {
	store := &delayedVisibilityStore{Store: NewMemoryStore(), visibleAt: 100}
	svc := newTestService(store, &capturingPublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := svc.FindWithRetry(ctx, uuid.New(), 3)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestConfirmOrder(t *testing.T) {
	store := NewMemoryStore()
	o := newStoredOrder(t, store)
	svc := newTestService(store, &capturingPublisher{})

	require.NoError(t, svc.ConfirmOrder(context.Background(), o.ID))

	got, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestConfirmOrderTwiceIsNoOp(t *testing.T) {
	store := NewMemoryStore()
	o := newStoredOrder(t, store)
	svc := newTestService(store, &capturingPublisher{})

	require.NoError(t, svc.ConfirmOrder(context.Background(), o.ID))
	require.NoError(t, svc.ConfirmOrder(context.Background(), o.ID))

	got, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestCancelOrderRecordsReason(t *testing.T) {
	store := NewMemoryStore()
	o := newStoredOrder(t, store)
	svc := newTestService(store, &capturingPublisher{})

	require.NoError(t, svc.CancelOrder(context.Background(), o.ID, "insufficient stock"))

	got, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "insufficient stock", got.CancellationReason)
}

func TestConfirmAfterCancelDoesNotOverride(t *testing.T) {
	store := NewMemoryStore()
	o := newStoredOrder(t, store)
	svc := newTestService(store, &capturingPublisher{})

	require.NoError(t, svc.CancelOrder(context.Background(), o.ID, "insufficient stock"))
	require.NoError(t, svc.ConfirmOrder(context.Background(), o.ID))

	got, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "insufficient stock", got.CancellationReason)
}

func TestConcurrentConfirmSingleTransition(t *testing.T) {
	store := NewMemoryStore()
	o := newStoredOrder(t, store)
	svc := newTestService(store, &capturingPublisher{})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.ConfirmOrder(context.Background(), o.ID)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}

	got, err := store.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}
