package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// stripeEvent is the subset of the gateway's event envelope we read.
// The order ID travels in the payment object's metadata.
type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// WebhookHandler handles payment gateway callbacks
type WebhookHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(orderService service.OrderService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers the webhook endpoint. No auth middleware:
// the gateway is not a logged-in user.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.HandleStripe)
}

// HandleStripe processes a payment event. Always returns 200 for
// events we understand but choose to ignore, so the gateway stops
// retrying them.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	var event stripeEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.logger.Debug("Malformed webhook payload", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	rawOrderID, ok := event.Data.Object.Metadata["order_id"]
	if !ok {
		h.logger.Warn("Webhook event missing order_id metadata", zap.String("type", event.Type))
		middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order_id metadata")
		return
	}

	if err := h.orderService.HandleStripeEvent(r.Context(), event.Type, orderID); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			// Unknown order: acknowledge so the gateway stops retrying
			h.logger.Warn("Webhook for unknown order", zap.String("order_id", rawOrderID))
			middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		h.logger.Error("Failed to process webhook", zap.Error(err), zap.String("type", event.Type))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	h.logger.Info("Payment event processed",
		zap.String("type", event.Type),
		zap.String("order_id", rawOrderID),
	)
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
