package transport

import (
	"errors"
	"net/http"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/repository"
	"marketplace/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CouponRequest represents the admin coupon creation payload
type CouponRequest struct {
	Code           string `json:"code" validate:"required,min=2,max=32"`
	DiscountType   string `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue  string `json:"discount_value" validate:"required"`
	MinOrderAmount string `json:"min_order_amount"`
	UsageLimit     int    `json:"usage_limit" validate:"gte=0"`
	ValidFrom      string `json:"valid_from" validate:"required"`
	ValidUntil     string `json:"valid_until" validate:"required"`
	Active         bool   `json:"active"`
}

// CouponHandler handles HTTP requests for coupon administration
type CouponHandler struct {
	couponService service.CouponService
	logger        *zap.Logger
}

// NewCouponHandler creates a new CouponHandler
func NewCouponHandler(couponService service.CouponService, logger *zap.Logger) *CouponHandler {
	return &CouponHandler{
		couponService: couponService,
		logger:        logger,
	}
}

// RegisterRoutes registers all coupon routes. Admin only.
func (h *CouponHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/v1/coupons", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequirePermission(domain.ActionCouponsManage, h.logger))
		r.Post("/", h.Create)
		r.Get("/", h.List)
	})
}

// Create handles coupon creation
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CouponRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	discountValue, err := decimal.NewFromString(req.DiscountValue)
	if err != nil || discountValue.IsNegative() {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid discount_value")
		return
	}
	if req.DiscountType == domain.DiscountTypePercentage && discountValue.GreaterThan(decimal.NewFromInt(100)) {
		middleware.RespondWithError(w, http.StatusBadRequest, "percentage discount cannot exceed 100")
		return
	}

	minOrder := decimal.Zero
	if req.MinOrderAmount != "" {
		minOrder, err = decimal.NewFromString(req.MinOrderAmount)
		if err != nil || minOrder.IsNegative() {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid min_order_amount")
			return
		}
	}

	validFrom, err := time.Parse(time.RFC3339, req.ValidFrom)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid valid_from, expected RFC3339")
		return
	}
	validUntil, err := time.Parse(time.RFC3339, req.ValidUntil)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid valid_until, expected RFC3339")
		return
	}
	if !validUntil.After(validFrom) {
		middleware.RespondWithError(w, http.StatusBadRequest, "valid_until must be after valid_from")
		return
	}

	coupon, err := h.couponService.Create(r.Context(), service.CouponInput{
		Code:           req.Code,
		DiscountType:   req.DiscountType,
		DiscountValue:  discountValue,
		MinOrderAmount: minOrder,
		UsageLimit:     req.UsageLimit,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
		Active:         req.Active,
	})
	if err != nil {
		if errors.Is(err, repository.ErrCouponAlreadyExists) {
			middleware.RespondWithError(w, http.StatusConflict, "coupon with this code already exists")
			return
		}
		h.logger.Error("Failed to create coupon", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create coupon")
		return
	}

	h.logger.Info("Coupon created", zap.String("code", coupon.Code))
	middleware.RespondWithJSON(w, http.StatusCreated, coupon)
}

// List handles listing all coupons
func (h *CouponHandler) List(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.couponService.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list coupons", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list coupons")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, coupons)
}
