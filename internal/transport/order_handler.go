package transport

import (
	"errors"
	"net/http"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutRequest represents the checkout payload
type CheckoutRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=card cod"`
	CouponCode    string `json:"coupon_code" validate:"omitempty,min=2,max=32"`
	ShippingName  string `json:"shipping_name" validate:"required"`
	ShippingLine1 string `json:"shipping_line1" validate:"required"`
	ShippingCity  string `json:"shipping_city" validate:"required"`
	ShippingZip   string `json:"shipping_zip" validate:"required"`
	ShippingPhone string `json:"shipping_phone" validate:"required"`
}

// TransitionRequest represents an admin order status change
type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled refunded"`
}

// OrderHandler handles HTTP requests for order operations
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers all order routes
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/checkout", h.Checkout)
		r.Get("/", h.ListMine)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(domain.ActionOrdersManage, h.logger))
			r.Get("/admin", h.ListAll)
			r.Put("/{id}/status", h.Transition)
		})
	})
}

// Checkout handles converting the caller's cart into an order
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CheckoutRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orderService.Checkout(r.Context(), userID, service.CheckoutInput{
		PaymentMethod: req.PaymentMethod,
		CouponCode:    req.CouponCode,
		ShippingName:  req.ShippingName,
		ShippingLine1: req.ShippingLine1,
		ShippingCity:  req.ShippingCity,
		ShippingZip:   req.ShippingZip,
		ShippingPhone: req.ShippingPhone,
	})
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	h.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

// ListMine handles listing the caller's orders
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, pageSize := pageParams(r)

	orders, total, err := h.orderService.ListOrders(r.Context(), userID, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	middleware.RespondWithPage(w, http.StatusOK, orders, middleware.NewPageMeta(page, pageSize, total))
}

// ListAll handles the admin order listing with optional status filter
func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	var status *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.OrderStatus(raw)
		if !domain.ValidOrderStatus(s) {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		status = &s
	}

	orders, total, err := h.orderService.ListAllOrders(r.Context(), status, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	middleware.RespondWithPage(w, http.StatusOK, orders, middleware.NewPageMeta(page, pageSize, total))
}

// Get handles fetching a single order
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	role, _ := middleware.GetUserRole(r.Context())
	order, err := h.orderService.GetOrder(r.Context(), userID, orderID, role == domain.RoleAdmin)
	if err != nil {
		h.respondOrderError(w, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// Transition handles an admin moving an order through the state machine
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req TransitionRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.orderService.TransitionStatus(r.Context(), orderID, domain.OrderStatus(req.Status))
	if err != nil {
		h.respondOrderError(w, err)
		return
	}

	h.logger.Info("Order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
	)
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) respondOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrEmptyCart):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, "cart is empty")
	case errors.Is(err, repository.ErrInsufficientStock):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrProductNotAvailable):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrUnknownOrderStatus):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrCouponNotFound):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, "coupon not found")
	case errors.Is(err, repository.ErrCouponExhausted),
		errors.Is(err, domain.ErrCouponInactive),
		errors.Is(err, domain.ErrCouponNotStarted),
		errors.Is(err, domain.ErrCouponExpired),
		errors.Is(err, domain.ErrCouponExhausted),
		errors.Is(err, domain.ErrCouponBelowMinimum):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("Order operation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "order operation failed")
	}
}
