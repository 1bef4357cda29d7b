package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/pricing"
	"storefront/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

var (
	ErrCartEmpty           = errors.New("cart is empty")
	ErrInvalidAddress      = errors.New("shipping address is incomplete")
	ErrOrderNotCancellable = errors.New("order can no longer be cancelled")
)

var addressValidate = validator.New()

// OrderConfirmation is the minimal result returned after checkout.
type OrderConfirmation struct {
	ID          uuid.UUID       `json:"id"`
	OrderNumber string          `json:"order_number"`
	Total       decimal.Decimal `json:"total"`
}

// OrderService defines the interface for order business logic
type OrderService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, address domain.ShippingAddress) (*OrderConfirmation, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error
}

type orderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

// newOrderNumber returns a globally unique order number. The ULID carries a
// millisecond timestamp plus 80 bits of entropy, so concurrent checkouts
// cannot collide in practice; the unique column is the backstop.
func newOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

// CreateOrder materializes the user's cart into an immutable order. The order,
// its items, and the consumption of the cart items commit as one transaction;
// a failure anywhere leaves no partial order visible.
func (s *orderService) CreateOrder(ctx context.Context, userID uuid.UUID, address domain.ShippingAddress) (*OrderConfirmation, error) {
	if err := addressValidate.Struct(address); err != nil {
		return nil, ErrInvalidAddress
	}

	cart, err := s.cartRepo.FindByUserID(ctx, userID)
	if err != nil {
		if err == repository.ErrCartNotFound {
			return nil, repository.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cartItems, err := s.cartRepo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	if len(cartItems) == 0 {
		return nil, ErrCartEmpty
	}

	lines := make([]pricing.Line, 0, len(cartItems))
	for _, item := range cartItems {
		lines = append(lines, pricing.Line{Price: item.Price, Quantity: item.Quantity})
	}

	quote, err := pricing.Compute(lines)
	if err != nil {
		return nil, fmt.Errorf("failed to price cart: %w", err)
	}

	order := &domain.Order{
		ID:            uuid.New(),
		OrderNumber:   newOrderNumber(),
		UserID:        userID,
		CartID:        cart.ID,
		Shipping:      address,
		Subtotal:      quote.Subtotal,
		ShippingCost:  quote.ShippingCost,
		Tax:           quote.Tax,
		Total:         quote.Total,
		PaymentStatus: domain.PaymentStatusPending,
		OrderStatus:   domain.OrderStatusPending,
		CreatedAt:     time.Now(),
	}

	orderItems := make([]domain.OrderItem, 0, len(cartItems))
	for _, item := range cartItems {
		product, err := s.productRepo.FindByID(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to load product for order line: %w", err)
		}

		orderItems = append(orderItems, domain.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			ProductName: product.Name,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Subtotal:    pricing.LineSubtotal(item.Price, item.Quantity),
		})
	}

	if err := s.orderRepo.CreateWithItems(ctx, order, orderItems); err != nil {
		if err == repository.ErrCartChanged {
			return nil, repository.ErrCartChanged
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return &OrderConfirmation{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
	}, nil
}

// ListOrders returns the user's orders, newest first
func (s *orderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	orders, err := s.orderRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetOrder returns one of the user's orders with its items. Another user's
// order reads as not found rather than forbidden, so order ids leak nothing.
func (s *orderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return nil, repository.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}

	items, err := s.orderRepo.ListItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	order.Items = items

	return order, nil
}

// CancelOrder cancels a pending, unpaid order. The state predicate lives in
// the conditional update, so a cancel racing a payment confirmation cannot
// both win.
func (s *orderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error {
	cancelled, err := s.orderRepo.Cancel(ctx, orderID, userID)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if cancelled {
		return nil
	}

	// Nothing changed: distinguish a missing order from one that is past
	// the point of cancellation.
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return repository.ErrOrderNotFound
		}
		return fmt.Errorf("failed to load order: %w", err)
	}
	if order.UserID != userID {
		return repository.ErrOrderNotFound
	}

	return ErrOrderNotCancellable
}
