package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product statuses. Only active products are visible in public listings.
const (
	ProductStatusDraft    = "draft"
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// Product represents a product in the catalog
type Product struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	SellerID     uuid.UUID        `json:"seller_id" db:"seller_id"`
	CategoryID   uuid.UUID        `json:"category_id" db:"category_id"`
	Name         string           `json:"name" db:"name"`
	SKU          string           `json:"sku" db:"sku"`
	Description  string           `json:"description" db:"description"`
	Price        decimal.Decimal  `json:"price" db:"price"`
	ComparePrice *decimal.Decimal `json:"compare_price,omitempty" db:"compare_price"`
	ImageURL     string           `json:"image_url" db:"image_url"`
	Stock        int              `json:"stock" db:"stock"`
	Status       string           `json:"status" db:"status"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// Visible reports whether the product may appear in public listings.
func (p *Product) Visible() bool {
	return p.Status == ProductStatusActive
}

// Category represents a product category
type Category struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
