package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func validCoupon() Coupon {
	now := time.Now()
	return Coupon{
		Code:           "SAVE20",
		DiscountType:   DiscountTypePercentage,
		DiscountValue:  decimal.NewFromInt(20),
		MinOrderAmount: decimal.NewFromInt(50),
		UsageLimit:     100,
		UsedCount:      0,
		ValidFrom:      now.Add(-time.Hour),
		ValidUntil:     now.Add(time.Hour),
		Active:         true,
	}
}

func TestDiscountFor_Percentage(t *testing.T) {
	c := validCoupon()
	discount, err := c.DiscountFor(decimal.NewFromInt(100), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := discount.StringFixed(2); got != "20.00" {
		t.Errorf("20%% of 100 = %s, want 20.00", got)
	}
}

func TestDiscountFor_PercentageRounding(t *testing.T) {
	c := validCoupon()
	c.DiscountValue = decimal.RequireFromString("7.5")
	discount, err := c.DiscountFor(decimal.RequireFromString("99.99"), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 7.5% of 99.99 = 7.49925, rounds to 7.50
	if got := discount.StringFixed(2); got != "7.50" {
		t.Errorf("discount = %s, want 7.50", got)
	}
}

func TestDiscountFor_FixedCappedAtSubtotal(t *testing.T) {
	c := validCoupon()
	c.DiscountType = DiscountTypeFixed
	c.DiscountValue = decimal.NewFromInt(80)
	c.MinOrderAmount = decimal.Zero

	discount, err := c.DiscountFor(decimal.NewFromInt(60), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !discount.Equal(decimal.NewFromInt(60)) {
		t.Errorf("fixed discount = %s, want capped at 60", discount)
	}
}

func TestDiscountFor_Validation(t *testing.T) {
	now := time.Now()
	subtotal := decimal.NewFromInt(100)

	tests := []struct {
		name    string
		mutate  func(*Coupon)
		wantErr error
	}{
		{"inactive", func(c *Coupon) { c.Active = false }, ErrCouponInactive},
		{"not started", func(c *Coupon) { c.ValidFrom = now.Add(time.Hour) }, ErrCouponNotStarted},
		{"expired", func(c *Coupon) { c.ValidUntil = now.Add(-time.Minute) }, ErrCouponExpired},
		{"exhausted", func(c *Coupon) { c.UsedCount = c.UsageLimit }, ErrCouponExhausted},
		{"below minimum", func(c *Coupon) { c.MinOrderAmount = decimal.NewFromInt(500) }, ErrCouponBelowMinimum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCoupon()
			tt.mutate(&c)
			discount, err := c.DiscountFor(subtotal, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got error %v, want %v", err, tt.wantErr)
			}
			if !discount.IsZero() {
				t.Errorf("failed validation must return zero discount, got %s", discount)
			}
		})
	}
}

func TestDiscountFor_UnlimitedUsage(t *testing.T) {
	c := validCoupon()
	c.UsageLimit = 0
	c.UsedCount = 100000

	if _, err := c.DiscountFor(decimal.NewFromInt(100), time.Now()); err != nil {
		t.Errorf("usage limit of zero must mean unlimited, got %v", err)
	}
}

func TestProperty_DiscountNeverExceedsSubtotal(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("discount is within [0, subtotal] and has 2dp", prop.ForAll(
		func(subtotalCents int, valueCents int, percentage bool) bool {
			c := validCoupon()
			c.MinOrderAmount = decimal.Zero
			if percentage {
				c.DiscountType = DiscountTypePercentage
				c.DiscountValue = decimal.NewFromInt(int64(valueCents % 101))
			} else {
				c.DiscountType = DiscountTypeFixed
				c.DiscountValue = decimal.New(int64(valueCents), -2)
			}
			subtotal := decimal.New(int64(subtotalCents), -2)

			discount, err := c.DiscountFor(subtotal, time.Now())
			if err != nil {
				return true
			}
			if discount.IsNegative() || discount.GreaterThan(subtotal) {
				return false
			}
			return discount.Exponent() >= -2
		},
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 2_000_000),
		gen.Bool(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
