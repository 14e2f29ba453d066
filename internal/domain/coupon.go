package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Coupon discount types.
const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

var (
	ErrCouponInactive     = errors.New("coupon is not active")
	ErrCouponNotStarted   = errors.New("coupon is not valid yet")
	ErrCouponExpired      = errors.New("coupon has expired")
	ErrCouponExhausted    = errors.New("coupon usage limit reached")
	ErrCouponBelowMinimum = errors.New("order amount below coupon minimum")
)

// Coupon represents a discount code. UsageLimit of zero means unlimited.
type Coupon struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Code           string          `json:"code" db:"code"`
	DiscountType   string          `json:"discount_type" db:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value" db:"discount_value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount" db:"min_order_amount"`
	UsageLimit     int             `json:"usage_limit" db:"usage_limit"`
	UsedCount      int             `json:"used_count" db:"used_count"`
	ValidFrom      time.Time       `json:"valid_from" db:"valid_from"`
	ValidUntil     time.Time       `json:"valid_until" db:"valid_until"`
	Active         bool            `json:"active" db:"active"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// DiscountFor validates the coupon against a subtotal at a point in time
// and returns the discount amount, rounded to 2 decimal places. A fixed
// discount is capped at the subtotal so totals never go negative.
func (c *Coupon) DiscountFor(subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !c.Active {
		return decimal.Zero, ErrCouponInactive
	}
	if now.Before(c.ValidFrom) {
		return decimal.Zero, ErrCouponNotStarted
	}
	if now.After(c.ValidUntil) {
		return decimal.Zero, ErrCouponExpired
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return decimal.Zero, ErrCouponExhausted
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return decimal.Zero, ErrCouponBelowMinimum
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountTypePercentage:
		discount = subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
	default:
		discount = c.DiscountValue
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount.Round(2), nil
}

// CouponUsage records a one-shot redemption; unique per
// (coupon_id, user_id, order_id).
type CouponUsage struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CouponID  uuid.UUID `json:"coupon_id" db:"coupon_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
