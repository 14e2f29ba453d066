package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketplace/internal/domain"

	"github.com/google/uuid"
)

var ErrCartItemNotFound = errors.New("cart item not found")

// CartRepository defines the interface for cart data access
type CartRepository interface {
	Upsert(ctx context.Context, item *domain.CartItem, maxQuantity int) error
	UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) error
	Remove(ctx context.Context, userID, itemID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	FindItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.CartItem, error)
	GetLines(ctx context.Context, userID uuid.UUID) ([]domain.CartLine, error)
}

type cartRepository struct {
	db DBTX
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db DBTX) CartRepository {
	return &cartRepository{db: db}
}

// Upsert inserts a cart row or adds to the quantity of the existing row
// for the same (user, product, variant) triple, saturating at
// maxQuantity rather than erroring.
func (r *cartRepository) Upsert(ctx context.Context, item *domain.CartItem, maxQuantity int) error {
	query := `
		INSERT INTO cart_items (id, user_id, product_id, variant_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, product_id, COALESCE(variant_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $8), updated_at = NOW()
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		item.ID,
		item.UserID,
		item.ProductID,
		item.VariantID,
		item.Quantity,
		item.CreatedAt,
		item.UpdatedAt,
		maxQuantity,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}

	return nil
}

// UpdateQuantity sets the quantity of a cart row owned by the user
func (r *cartRepository) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	query := `
		UPDATE cart_items
		SET quantity = $3, updated_at = NOW()
		WHERE id = $2 AND user_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, userID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCartItemNotFound
	}

	return nil
}

// Remove deletes a cart row owned by the user
func (r *cartRepository) Remove(ctx context.Context, userID, itemID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $2 AND user_id = $1`, userID, itemID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCartItemNotFound
	}

	return nil
}

// Clear deletes every cart row of the user. Called on order completion.
func (r *cartRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// FindItem retrieves one cart row owned by the user
func (r *cartRepository) FindItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.CartItem, error) {
	query := `
		SELECT id, user_id, product_id, variant_id, quantity, created_at, updated_at
		FROM cart_items
		WHERE id = $2 AND user_id = $1
	`

	item := &domain.CartItem{}
	err := r.db.QueryRowContext(ctx, query, userID, itemID).Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.VariantID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to find cart item: %w", err)
	}

	return item, nil
}

// GetLines returns the user's cart rows joined with the current product
// state. Totals are always derived from this query, never stored.
func (r *cartRepository) GetLines(ctx context.Context, userID uuid.UUID) ([]domain.CartLine, error) {
	query := `
		SELECT ci.id, ci.user_id, ci.product_id, ci.variant_id, ci.quantity, ci.created_at, ci.updated_at,
		       p.name, p.sku, p.price, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		err := rows.Scan(
			&line.Item.ID,
			&line.Item.UserID,
			&line.Item.ProductID,
			&line.Item.VariantID,
			&line.Item.Quantity,
			&line.Item.CreatedAt,
			&line.Item.UpdatedAt,
			&line.ProductName,
			&line.ProductSKU,
			&line.UnitPrice,
			&line.Stock,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		line.LineTotal = line.UnitPrice.Mul(intToDecimal(line.Item.Quantity)).Round(2)
		lines = append(lines, line)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart lines: %w", err)
	}

	return lines, nil
}
