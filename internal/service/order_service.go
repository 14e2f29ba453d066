package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/domain"
	"marketplace/internal/queue"
	"marketplace/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrUnknownOrderStatus = errors.New("unknown order status")
)

// CheckoutInput is what the buyer submits to place an order.
type CheckoutInput struct {
	PaymentMethod string
	CouponCode    string
	ShippingName  string
	ShippingLine1 string
	ShippingCity  string
	ShippingZip   string
	ShippingPhone string
}

// OrderService defines the interface for order business logic
type OrderService interface {
	Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*domain.Order, error)
	GetOrder(ctx context.Context, userID uuid.UUID, orderID uuid.UUID, isAdmin bool) (*domain.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error)
	ListAllOrders(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus) (*domain.Order, error)
	HandleStripeEvent(ctx context.Context, eventType string, orderID uuid.UUID) error
}

type orderService struct {
	db          *sql.DB
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
	checkoutCfg config.CheckoutConfig
	queue       *queue.Queue
	logger      *zap.Logger
}

// NewOrderService creates a new instance of OrderService. The *sql.DB
// is used to open the checkout transaction that spans stock, coupon and
// order writes.
func NewOrderService(
	db *sql.DB,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	checkoutCfg config.CheckoutConfig,
	q *queue.Queue,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		db:          db,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		checkoutCfg: checkoutCfg,
		queue:       q,
		logger:      logger,
	}
}

// Checkout converts the user's cart into an order inside a single
// transaction: stock is decremented with a guard, the coupon (if any)
// is validated and redeemed, totals are computed, the order and its
// item snapshots are inserted, and the cart is cleared. Any failure
// rolls the whole thing back, leaving cart and stock untouched.
func (s *orderService) Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*domain.Order, error) {
	if input.PaymentMethod != domain.PaymentMethodCard && input.PaymentMethod != domain.PaymentMethodCOD {
		return nil, fmt.Errorf("unsupported payment method %q", input.PaymentMethod)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin checkout transaction: %w", err)
	}
	defer tx.Rollback()

	cartRepo := repository.NewCartRepository(tx)
	productRepo := repository.NewProductRepository(tx)
	couponRepo := repository.NewCouponRepository(tx)
	orderRepo := repository.NewOrderRepository(tx)

	lines, err := cartRepo.GetLines(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	orderID := uuid.New()
	now := time.Now()

	subtotal := decimal.Zero
	items := make([]domain.OrderItem, 0, len(lines))
	lowStock := make([]domain.CartLine, 0)

	for _, line := range lines {
		product, err := productRepo.FindByID(ctx, line.Item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.Visible() {
			return nil, fmt.Errorf("%w: %s", ErrProductNotAvailable, product.Name)
		}
		if err := productRepo.DecrementStock(ctx, product.ID, line.Item.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				return nil, fmt.Errorf("%w: %s", repository.ErrInsufficientStock, product.Name)
			}
			return nil, err
		}

		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(line.Item.Quantity))).Round(2)
		subtotal = subtotal.Add(lineTotal)
		items = append(items, domain.OrderItem{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   product.ID,
			ProductName: product.Name,
			ProductSKU:  product.SKU,
			UnitPrice:   product.Price,
			Quantity:    line.Item.Quantity,
			LineTotal:   lineTotal,
		})

		if product.Stock-line.Item.Quantity <= s.checkoutCfg.LowStockThreshold {
			remaining := line
			remaining.Stock = product.Stock - line.Item.Quantity
			lowStock = append(lowStock, remaining)
		}
	}
	subtotal = subtotal.Round(2)

	discount := decimal.Zero
	var couponID *uuid.UUID
	if input.CouponCode != "" {
		coupon, err := couponRepo.FindByCode(ctx, input.CouponCode)
		if err != nil {
			return nil, err
		}
		discount, err = coupon.DiscountFor(subtotal, now)
		if err != nil {
			return nil, err
		}
		if err := couponRepo.Redeem(ctx, coupon.ID, userID, orderID); err != nil {
			return nil, err
		}
		couponID = &coupon.ID
	}

	tax := subtotal.Mul(decimal.NewFromFloat(s.checkoutCfg.TaxRate)).Round(2)
	shipping := decimal.NewFromFloat(s.checkoutCfg.ShippingFlat).Round(2)
	if subtotal.GreaterThanOrEqual(decimal.NewFromFloat(s.checkoutCfg.FreeShippingOver)) {
		shipping = decimal.Zero
	}
	total := subtotal.Add(tax).Add(shipping).Sub(discount).Round(2)

	order := &domain.Order{
		ID:             orderID,
		UserID:         userID,
		OrderNumber:    generateOrderNumber(now),
		Status:         domain.OrderStatusPending,
		PaymentStatus:  domain.PaymentStatusPending,
		PaymentMethod:  input.PaymentMethod,
		Subtotal:       subtotal,
		TaxAmount:      tax,
		ShippingAmount: shipping,
		DiscountAmount: discount,
		TotalAmount:    total,
		CouponID:       couponID,
		ShippingName:   input.ShippingName,
		ShippingLine1:  input.ShippingLine1,
		ShippingCity:   input.ShippingCity,
		ShippingZip:    input.ShippingZip,
		ShippingPhone:  input.ShippingPhone,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          items,
	}

	if err := orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if err := cartRepo.Clear(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}

	s.afterCheckout(ctx, order, lowStock)

	return order, nil
}

// afterCheckout enqueues the side effects of a committed order:
// confirmation mail, low-stock alerts, search index sync for changed
// stock. Failures here never undo the order.
func (s *orderService) afterCheckout(ctx context.Context, order *domain.Order, lowStock []domain.CartLine) {
	if s.queue == nil {
		return
	}

	recipient := ""
	if user, err := s.userRepo.FindByID(ctx, order.UserID); err == nil {
		recipient = user.Email
	}

	err := s.queue.Enqueue(ctx, queue.TypeNotification, queue.NotificationPayload{
		Channel:   "mail",
		Recipient: recipient,
		Subject:   "Order confirmed",
		Body:      fmt.Sprintf("Order %s placed, total %s", order.OrderNumber, order.TotalAmount.StringFixed(2)),
		Metadata: map[string]string{
			"order_id": order.ID.String(),
			"user_id":  order.UserID.String(),
		},
	})
	if err != nil {
		s.logger.Warn("failed to enqueue order confirmation", zap.Error(err))
	}

	for _, line := range lowStock {
		err := s.queue.Enqueue(ctx, queue.TypeNotification, queue.NotificationPayload{
			Channel: "log",
			Subject: "Low stock",
			Body:    fmt.Sprintf("%s (%s) down to %d units", line.ProductName, line.ProductSKU, line.Stock),
			Metadata: map[string]string{
				"product_id": line.Item.ProductID.String(),
			},
		})
		if err != nil {
			s.logger.Warn("failed to enqueue low stock alert", zap.Error(err))
		}
	}

	for _, item := range order.Items {
		err := s.queue.Enqueue(ctx, queue.TypeSearchSync, queue.SearchSyncPayload{ProductID: item.ProductID})
		if err != nil {
			s.logger.Warn("failed to enqueue search sync", zap.Error(err))
		}
	}
}

// GetOrder returns an order, restricted to its owner unless the caller
// is an admin.
func (s *orderService) GetOrder(ctx context.Context, userID uuid.UUID, orderID uuid.UUID, isAdmin bool) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && order.UserID != userID {
		// Hide existence from non-owners
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns the caller's own orders, newest first
func (s *orderService) ListOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Order, int, error) {
	return s.orderRepo.ListByUser(ctx, userID, page, pageSize)
}

// ListAllOrders returns every order, optionally filtered by status
func (s *orderService) ListAllOrders(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error) {
	return s.orderRepo.List(ctx, status, page, pageSize)
}

// TransitionStatus moves an order along the fulfilment state machine.
// Moving to cancelled or refunded restores the ordered stock.
func (s *orderService) TransitionStatus(ctx context.Context, orderID uuid.UUID, to domain.OrderStatus) (*domain.Order, error) {
	if !domain.ValidOrderStatus(to) {
		return nil, ErrUnknownOrderStatus
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, to)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderRepo := repository.NewOrderRepository(tx)
	productRepo := repository.NewProductRepository(tx)

	if err := orderRepo.UpdateStatus(ctx, orderID, to); err != nil {
		return nil, err
	}

	if domain.RestoresStock(to) {
		for _, item := range order.Items {
			if err := productRepo.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return nil, fmt.Errorf("failed to restore stock: %w", err)
			}
		}
		if to == domain.OrderStatusRefunded {
			if err := orderRepo.UpdatePaymentStatus(ctx, orderID, domain.PaymentStatusRefunded); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}

	if s.queue != nil {
		recipient := ""
		if user, err := s.userRepo.FindByID(ctx, order.UserID); err == nil {
			recipient = user.Email
		}
		err := s.queue.Enqueue(ctx, queue.TypeNotification, queue.NotificationPayload{
			Channel:   "mail",
			Recipient: recipient,
			Subject:   fmt.Sprintf("Order %s", to),
			Body:      fmt.Sprintf("Order %s is now %s", order.OrderNumber, to),
			Metadata: map[string]string{
				"order_id": order.ID.String(),
				"user_id":  order.UserID.String(),
			},
		})
		if err != nil {
			s.logger.Warn("failed to enqueue status notification", zap.Error(err))
		}

		if domain.RestoresStock(to) {
			for _, item := range order.Items {
				if err := s.queue.Enqueue(ctx, queue.TypeSearchSync, queue.SearchSyncPayload{ProductID: item.ProductID}); err != nil {
					s.logger.Warn("failed to enqueue search sync", zap.Error(err))
				}
			}
		}
	}

	return s.orderRepo.FindByID(ctx, orderID)
}

// HandleStripeEvent maps a payment gateway event onto the order's
// payment and fulfilment state. Unknown event types are ignored.
func (s *orderService) HandleStripeEvent(ctx context.Context, eventType string, orderID uuid.UUID) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}

	switch eventType {
	case "payment_intent.succeeded":
		if err := s.orderRepo.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusPaid); err != nil {
			return err
		}
		if order.Status == domain.OrderStatusPending {
			if _, err := s.TransitionStatus(ctx, order.ID, domain.OrderStatusProcessing); err != nil {
				return err
			}
		}
	case "payment_intent.payment_failed":
		return s.orderRepo.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusFailed)
	case "charge.refunded":
		if domain.CanTransition(order.Status, domain.OrderStatusRefunded) {
			_, err := s.TransitionStatus(ctx, order.ID, domain.OrderStatusRefunded)
			return err
		}
		return s.orderRepo.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusRefunded)
	default:
		s.logger.Debug("ignoring payment event", zap.String("type", eventType))
	}
	return nil
}

// generateOrderNumber builds a human-readable unique order number
func generateOrderNumber(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("ORD-%s-%s", t.Format("20060102"), suffix)
}
