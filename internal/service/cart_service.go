package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotAvailable = errors.New("product is not available")
	ErrOutOfStock          = errors.New("product is out of stock")
)

// CartService defines the interface for cart business logic
type CartService interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID, quantity int) (*domain.Cart, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	PreviewCoupon(ctx context.Context, userID uuid.UUID, code string) (*CouponPreview, error)
}

// CouponPreview is the discount a coupon would apply to the current
// cart, without redeeming it.
type CouponPreview struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	couponRepo  repository.CouponRepository
}

// NewCartService creates a new instance of CartService
func NewCartService(
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	couponRepo repository.CouponRepository,
) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		couponRepo:  couponRepo,
	}
}

// AddItem adds a product to the cart, clamping the quantity to the
// per-line ceiling and available stock. Adding an already-carted
// product accumulates quantity up to the same ceiling.
func (s *cartService) AddItem(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID, quantity int) (*domain.Cart, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Visible() {
		return nil, ErrProductNotAvailable
	}

	clamped := domain.ClampQuantity(quantity, product.Stock)
	if clamped == 0 {
		return nil, ErrOutOfStock
	}

	maxQuantity := domain.MaxCartQuantity
	if product.Stock < maxQuantity {
		maxQuantity = product.Stock
	}

	item := &domain.CartItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		VariantID: variantID,
		Quantity:  clamped,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.cartRepo.Upsert(ctx, item, maxQuantity); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	return s.GetCart(ctx, userID)
}

// UpdateItem sets the quantity of an existing line, clamped against
// current stock. A quantity of zero removes the line.
func (s *cartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.Cart, error) {
	item, err := s.cartRepo.FindItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if quantity <= 0 {
		if err := s.cartRepo.Remove(ctx, userID, itemID); err != nil {
			return nil, err
		}
		return s.GetCart(ctx, userID)
	}

	product, err := s.productRepo.FindByID(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}

	clamped := domain.ClampQuantity(quantity, product.Stock)
	if clamped == 0 {
		return nil, ErrOutOfStock
	}

	if err := s.cartRepo.UpdateQuantity(ctx, userID, itemID, clamped); err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	return s.GetCart(ctx, userID)
}

// RemoveItem deletes a line from the caller's cart
func (s *cartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.Cart, error) {
	if err := s.cartRepo.Remove(ctx, userID, itemID); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, userID)
}

// Clear empties the caller's cart
func (s *cartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.cartRepo.Clear(ctx, userID)
}

// GetCart returns the cart with line totals and subtotal recomputed
// from current product prices.
func (s *cartService) GetCart(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	lines, err := s.cartRepo.GetLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart := &domain.Cart{
		UserID:   userID,
		Lines:    lines,
		Subtotal: decimal.Zero,
	}
	for _, line := range lines {
		cart.Subtotal = cart.Subtotal.Add(line.LineTotal)
	}
	cart.Subtotal = cart.Subtotal.Round(2)

	return cart, nil
}

// PreviewCoupon validates a coupon against the current cart subtotal
// without consuming a redemption.
func (s *cartService) PreviewCoupon(ctx context.Context, userID uuid.UUID, code string) (*CouponPreview, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	coupon, err := s.couponRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	discount, err := coupon.DiscountFor(cart.Subtotal, time.Now())
	if err != nil {
		return nil, err
	}

	return &CouponPreview{
		Code:     coupon.Code,
		Subtotal: cart.Subtotal,
		Discount: discount,
		Total:    cart.Subtotal.Sub(discount).Round(2),
	}, nil
}
