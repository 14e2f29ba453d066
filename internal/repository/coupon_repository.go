package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponAlreadyExists = errors.New("coupon with this code already exists")
	ErrCouponExhausted     = errors.New("coupon usage limit reached")
)

// CouponRepository defines the interface for coupon data access
type CouponRepository interface {
	Create(ctx context.Context, coupon *domain.Coupon) error
	FindByCode(ctx context.Context, code string) (*domain.Coupon, error)
	List(ctx context.Context) ([]*domain.Coupon, error)
	Redeem(ctx context.Context, couponID, userID, orderID uuid.UUID) error
}

type couponRepository struct {
	db DBTX
}

// NewCouponRepository creates a new instance of CouponRepository
func NewCouponRepository(db DBTX) CouponRepository {
	return &couponRepository{db: db}
}

const couponColumns = `id, code, discount_type, discount_value, min_order_amount, usage_limit, used_count, valid_from, valid_until, active, created_at`

// Create inserts a new coupon
func (r *couponRepository) Create(ctx context.Context, coupon *domain.Coupon) error {
	query := `
		INSERT INTO coupons (id, code, discount_type, discount_value, min_order_amount, usage_limit, used_count, valid_from, valid_until, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		coupon.ID,
		coupon.Code,
		coupon.DiscountType,
		coupon.DiscountValue,
		coupon.MinOrderAmount,
		coupon.UsageLimit,
		coupon.UsedCount,
		coupon.ValidFrom,
		coupon.ValidUntil,
		coupon.Active,
		coupon.CreatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "coupons_code_key") {
			return ErrCouponAlreadyExists
		}
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	return nil
}

// FindByCode retrieves a coupon by its code (case-insensitive)
func (r *couponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE UPPER(code) = UPPER($1)`, couponColumns)

	coupon := &domain.Coupon{}
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.DiscountType,
		&coupon.DiscountValue,
		&coupon.MinOrderAmount,
		&coupon.UsageLimit,
		&coupon.UsedCount,
		&coupon.ValidFrom,
		&coupon.ValidUntil,
		&coupon.Active,
		&coupon.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to find coupon: %w", err)
	}

	return coupon, nil
}

// List retrieves all coupons, newest first
func (r *couponRepository) List(ctx context.Context) ([]*domain.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons ORDER BY created_at DESC`, couponColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	coupons := []*domain.Coupon{}
	for rows.Next() {
		coupon := &domain.Coupon{}
		err := rows.Scan(
			&coupon.ID,
			&coupon.Code,
			&coupon.DiscountType,
			&coupon.DiscountValue,
			&coupon.MinOrderAmount,
			&coupon.UsageLimit,
			&coupon.UsedCount,
			&coupon.ValidFrom,
			&coupon.ValidUntil,
			&coupon.Active,
			&coupon.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, coupon)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coupons: %w", err)
	}

	return coupons, nil
}

// Redeem increments used_count exactly once and records the usage. The
// guarded UPDATE keeps used_count <= usage_limit even under concurrent
// checkouts; zero rows affected means the limit was hit first.
func (r *couponRepository) Redeem(ctx context.Context, couponID, userID, orderID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)
	`, couponID)
	if err != nil {
		return fmt.Errorf("failed to redeem coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCouponExhausted
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), couponID, userID, orderID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}

	return nil
}
