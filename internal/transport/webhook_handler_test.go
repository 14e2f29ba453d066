package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"marketplace/internal/domain"
	"marketplace/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// recordingOrderService records the last webhook event it was handed.
type recordingOrderService struct {
	eventType string
	orderID   uuid.UUID
	err       error
}

var _ service.OrderService = (*recordingOrderService)(nil)

func (s *recordingOrderService) Checkout(ctx context.Context, userID uuid.UUID, input service.CheckoutInput) (*domain.Order, error) {
	return nil, nil
}

func (s *recordingOrderService) GetOrder(ctx context.Context, userID uuid.UUID, orderID uuid.UUID, isAdmin bool) (*domain.Order, error) {
	return nil, nil
}

func (s *recordingOrderService) ListOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	return nil, 0, nil
}

func (s *recordingOrderService) ListAllOrders(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error) {
	return nil, 0, nil
}

func (s *recordingOrderService) TransitionStatus(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus) (*domain.Order, error) {
	return nil, nil
}

func (s *recordingOrderService) HandleStripeEvent(ctx context.Context, eventType string, orderID uuid.UUID) error {
	s.eventType = eventType
	s.orderID = orderID
	return s.err
}

func newWebhookRouter(orders *recordingOrderService) *chi.Mux {
	router := chi.NewRouter()
	NewWebhookHandler(orders, zap.NewNop()).RegisterRoutes(router)
	return router
}

func TestHandleStripe_MountedAtRoot(t *testing.T) {
	orders := &recordingOrderService{}
	router := newWebhookRouter(orders)

	orderID := uuid.New()
	body := `{"type":"payment_intent.succeeded","data":{"object":{"metadata":{"order_id":"` + orderID.String() + `"}}}}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if orders.eventType != "payment_intent.succeeded" {
		t.Errorf("event type = %q, want payment_intent.succeeded", orders.eventType)
	}
	if orders.orderID != orderID {
		t.Errorf("order ID = %s, want %s", orders.orderID, orderID)
	}
}

func TestHandleStripe_MissingOrderIDIsAcknowledged(t *testing.T) {
	orders := &recordingOrderService{}
	router := newWebhookRouter(orders)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe",
		strings.NewReader(`{"type":"payment_intent.succeeded","data":{"object":{"metadata":{}}}}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if orders.eventType != "" {
		t.Errorf("event without order_id was forwarded as %q", orders.eventType)
	}
}
