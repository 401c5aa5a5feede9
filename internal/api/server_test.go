package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"orderservice/internal/order"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type stubPublisher struct {
	err error
}

func (p *stubPublisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	return p.err
}

func newTestServer(store order.Store, publisher order.EventPublisher) *Server {
	svc := order.NewService(store, publisher, zap.NewNop(), otel.Tracer("test"))
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewServer(svc, zap.NewNop(), metrics)
}

func createBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"customerId": uuid.New(),
		"items": []map[string]any{
			{"productId": uuid.New(), "quantity": 2},
		},
		"shippingAddress": map[string]string{
			"country":    "EC",
			"city":       "Quito",
			"street":     "Av. General Rumiñahui",
			"postalCode": "171103",
		},
		"paymentReference": "pay-123",
	})
	require.NoError(t, err)
	return body
}

func doRequest(srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderEndpoint(t *testing.T) {
	srv := newTestServer(order.NewMemoryStore(), &stubPublisher{})

	rec := doRequest(srv, http.MethodPost, "/api/orders", createBody(t))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		OrderID uuid.UUID `json:"orderId"`
		Status  string    `json:"status"`
		Message string    `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.OrderID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, "Order received. Inventory check in progress.", resp.Message)
}

func TestCreateOrderValidation(t *testing.T) {
	srv := newTestServer(order.NewMemoryStore(), &stubPublisher{})

	body, err := json.Marshal(map[string]any{
		"customerId":       uuid.New(),
		"items":            []any{},
		"shippingAddress":  map[string]string{"country": "EC", "city": "Quito", "street": "x", "postalCode": "1"},
		"paymentReference": "pay-123",
	})
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error)
}

func TestCreateOrderPublishFailure(t *testing.T) {
	store := order.NewMemoryStore()
	srv := newTestServer(store, &stubPublisher{err: &order.TransportError{Op: "publish OrderCreated", Err: errors.New("broker unreachable")}})

	rec := doRequest(srv, http.MethodPost, "/api/orders", createBody(t))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "transport_error", resp.Error)
}

func TestGetOrderEndpoint(t *testing.T) {
	store := order.NewMemoryStore()
	srv := newTestServer(store, &stubPublisher{})

	rec := doRequest(srv, http.MethodPost, "/api/orders", createBody(t))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		OrderID uuid.UUID `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(srv, http.MethodGet, "/api/orders/"+created.OrderID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OrderID uuid.UUID `json:"orderId"`
		Status  string    `json:"status"`
		Message string    `json:"message"`
		Reason  string    `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.OrderID, resp.OrderID)
	assert.Equal(t, "PENDING", resp.Status)
	assert.NotEmpty(t, resp.Message)
	assert.Empty(t, resp.Reason)
}

func TestGetCancelledOrderShowsReason(t *testing.T) {
	store := order.NewMemoryStore()
	svc := order.NewService(store, &stubPublisher{}, zap.NewNop(), otel.Tracer("test"))
	srv := NewServer(svc, zap.NewNop(), NewMetrics(prometheus.NewRegistry()))

	o, err := svc.CreateOrder(context.Background(), uuid.New(), []order.Item{{ProductID: uuid.New(), Quantity: 1}}, order.ShippingAddress{
		Country: "EC", City: "Quito", Street: "x", PostalCode: "1",
	}, "pay-123")
	require.NoError(t, err)
	require.NoError(t, svc.CancelOrder(context.Background(), o.ID, "insufficient stock"))

	rec := doRequest(srv, http.MethodGet, "/api/orders/"+o.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string `json:"status"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CANCELLED", resp.Status)
	assert.Equal(t, "insufficient stock", resp.Reason)
	assert.Empty(t, resp.Message)
}

func TestGetOrderNotFound(t *testing.T) {
	srv := newTestServer(order.NewMemoryStore(), &stubPublisher{})

	rec := doRequest(srv, http.MethodGet, "/api/orders/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error)
}

func TestGetOrderInvalidID(t *testing.T) {
	srv := newTestServer(order.NewMemoryStore(), &stubPublisher{})

	rec := doRequest(srv, http.MethodGet, "/api/orders/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(order.NewMemoryStore(), &stubPublisher{})

	rec := doRequest(srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
