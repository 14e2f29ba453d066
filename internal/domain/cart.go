package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxCartQuantity is the per-line ceiling regardless of available stock.
const MaxCartQuantity = 10

// CartItem is one row of a user's cart, keyed by
// (user_id, product_id, variant_id).
type CartItem struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	ProductID uuid.UUID  `json:"product_id" db:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty" db:"variant_id"`
	Quantity  int        `json:"quantity" db:"quantity"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// CartLine is a cart item joined with the current product state. Totals
// are recomputed from these on every read, never cached.
type CartLine struct {
	Item        CartItem        `json:"item"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Stock       int             `json:"stock"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Cart is the fully-populated view of a user's cart.
type Cart struct {
	UserID   uuid.UUID       `json:"user_id"`
	Lines    []CartLine      `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ClampQuantity bounds a requested cart quantity to [1, min(10, stock)].
// A non-positive result means the product cannot be carted at all
// (out of stock).
func ClampQuantity(requested, stock int) int {
	limit := MaxCartQuantity
	if stock < limit {
		limit = stock
	}
	if limit < 1 {
		return 0
	}
	if requested > limit {
		return limit
	}
	if requested < 1 {
		return 1
	}
	return requested
}
