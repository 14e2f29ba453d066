package service

import (
	"context"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CouponInput carries the writable coupon fields.
type CouponInput struct {
	Code           string
	DiscountType   string
	DiscountValue  decimal.Decimal
	MinOrderAmount decimal.Decimal
	UsageLimit     int
	ValidFrom      time.Time
	ValidUntil     time.Time
	Active         bool
}

// CouponService defines the interface for coupon administration
type CouponService interface {
	Create(ctx context.Context, input CouponInput) (*domain.Coupon, error)
	List(ctx context.Context) ([]*domain.Coupon, error)
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

type couponService struct {
	couponRepo repository.CouponRepository
}

// NewCouponService creates a new instance of CouponService
func NewCouponService(couponRepo repository.CouponRepository) CouponService {
	return &couponService{couponRepo: couponRepo}
}

// Create adds a coupon. Codes are stored uppercase and matched
// case-insensitively.
func (s *couponService) Create(ctx context.Context, input CouponInput) (*domain.Coupon, error) {
	coupon := &domain.Coupon{
		ID:             uuid.New(),
		Code:           strings.ToUpper(strings.TrimSpace(input.Code)),
		DiscountType:   input.DiscountType,
		DiscountValue:  input.DiscountValue,
		MinOrderAmount: input.MinOrderAmount,
		UsageLimit:     input.UsageLimit,
		ValidFrom:      input.ValidFrom,
		ValidUntil:     input.ValidUntil,
		Active:         input.Active,
		CreatedAt:      time.Now(),
	}
	if err := s.couponRepo.Create(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

// List returns all coupons
func (s *couponService) List(ctx context.Context) ([]*domain.Coupon, error) {
	return s.couponRepo.List(ctx)
}

// GetByCode looks a coupon up by its code
func (s *couponService) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return s.couponRepo.FindByCode(ctx, code)
}
