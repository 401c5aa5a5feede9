package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"orderservice/internal/order"
	"orderservice/internal/platform/observability"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// pendingMessage is returned for orders still waiting on the inventory
// outcome, mirroring the creation response.
const pendingMessage = "Order received. Inventory check in progress."

// Server exposes the order command and query surface over HTTP.
type Server struct {
	service *order.Service
	logger  observability.Logger
	metrics *Metrics
}

func NewServer(service *order.Service, logger observability.Logger, metrics *Metrics) *Server {
	return &Server{
		service: service,
		logger:  logger,
		metrics: metrics,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", s.instrument("create_order", s.handleCreateOrder))
	mux.HandleFunc("GET /api/orders/{id}", s.instrument("get_order", s.handleGetOrder))
	mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("HTTP server listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type createOrderRequest struct {
	CustomerID       uuid.UUID              `json:"customerId"`
	Items            []orderItemRequest     `json:"items"`
	ShippingAddress  shippingAddressPayload `json:"shippingAddress"`
	PaymentReference string                 `json:"paymentReference"`
}

type orderItemRequest struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

type shippingAddressPayload struct {
	Country    string `json:"country"`
	City       string `json:"city"`
	Street     string `json:"street"`
	PostalCode string `json:"postalCode"`
}

type createOrderResponse struct {
	OrderID uuid.UUID `json:"orderId"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

type orderResponse struct {
	OrderID          uuid.UUID              `json:"orderId"`
	CustomerID       uuid.UUID              `json:"customerId"`
	Status           string                 `json:"status"`
	Items            []orderItemRequest     `json:"items"`
	ShippingAddress  shippingAddressPayload `json:"shippingAddress"`
	PaymentReference string                 `json:"paymentReference"`
	Reason           string                 `json:"reason,omitempty"`
	Message          string                 `json:"message,omitempty"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: "invalid json body"})
		return
	}

	items := make([]order.Item, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, order.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	o, err := s.service.CreateOrder(r.Context(), req.CustomerID, items, order.ShippingAddress(req.ShippingAddress), req.PaymentReference)
	if err != nil {
		// The order may have committed even though the publish failed;
		// report the failure either way so the client can reconcile.
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID: o.ID,
		Status:  string(o.Status),
		Message: pendingMessage,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: "order id must be a UUID"})
		return
	}

	o, err := s.service.GetOrder(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemRequest, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	resp := orderResponse{
		OrderID:          o.ID,
		CustomerID:       o.CustomerID,
		Status:           string(o.Status),
		Items:            items,
		ShippingAddress:  shippingAddressPayload(o.ShippingAddress),
		PaymentReference: o.PaymentReference,
		UpdatedAt:        o.UpdatedAt,
	}
	switch o.Status {
	case order.StatusCancelled:
		resp.Reason = o.CancellationReason
	case order.StatusPending:
		resp.Message = pendingMessage
	}
	return resp
}

// writeError maps the error taxonomy onto HTTP statuses; clients switch on
// the machine-readable category, not the message text.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validationErr *order.ValidationError
	var transportErr *order.TransportError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: validationErr.Error()})
	case errors.Is(err, order.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "order not found"})
	case errors.As(err, &transportErr):
		s.logger.Error("Transport failure on HTTP path", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "transport_error", Message: "event publication failed"})
	default:
		s.logger.Error("Unhandled error on HTTP path", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"})
	}
}

func (s *Server) instrument(handler string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.Observe(handler, strconv.Itoa(rec.status), time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
