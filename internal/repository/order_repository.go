package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrCartChanged means the cart items priced into the order were
	// modified or consumed by a concurrent request before the transaction
	// could claim them.
	ErrCartChanged = errors.New("cart contents changed during checkout")
)

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	CreateWithItems(ctx context.Context, order *domain.Order, items []domain.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	MarkPaymentCompleted(ctx context.Context, orderID, cartID uuid.UUID, paymentRef string) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, paymentRef string) (bool, error)
	Cancel(ctx context.Context, orderID, userID uuid.UUID) (bool, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// CreateWithItems persists the order, its items, and the consumption of the
// originating cart items as one transaction. The cart-item delete is gated on
// the exact (id, quantity) snapshot the order was priced from; if a concurrent
// checkout or cart mutation got there first the transaction rolls back with
// ErrCartChanged and nothing becomes visible.
func (r *orderRepository) CreateWithItems(ctx context.Context, order *domain.Order, items []domain.OrderItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderQuery := `
		INSERT INTO orders (
			id, order_number, user_id, cart_id,
			first_name, last_name, email, phone, street, city, state, zip_code, country,
			subtotal, shipping_cost, tax, total,
			payment_status, order_status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
	`

	_, err = tx.ExecContext(
		ctx,
		orderQuery,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.CartID,
		order.Shipping.FirstName,
		order.Shipping.LastName,
		order.Shipping.Email,
		order.Shipping.Phone,
		order.Shipping.Street,
		order.Shipping.City,
		order.Shipping.State,
		order.Shipping.ZipCode,
		order.Shipping.Country,
		order.Subtotal,
		order.ShippingCost,
		order.Tax,
		order.Total,
		order.PaymentStatus,
		order.OrderStatus,
		order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, product_name, price, quantity, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, item := range items {
		_, err = tx.ExecContext(
			ctx,
			itemQuery,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.Price,
			item.Quantity,
			item.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	// Claim the priced cart items. A row that was concurrently removed or
	// re-quantified no longer matches and fails the whole checkout.
	claimQuery := `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2 AND quantity = $3`
	for _, item := range items {
		result, err := tx.ExecContext(ctx, claimQuery, order.CartID, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to clear cart items: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return ErrCartChanged
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	return nil
}

const orderColumns = `
	id, order_number, user_id, cart_id,
	first_name, last_name, email, phone, street, city, state, zip_code, country,
	subtotal, shipping_cost, tax, total,
	payment_status, order_status, COALESCE(payment_ref, ''), created_at, updated_at
`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.CartID,
		&order.Shipping.FirstName,
		&order.Shipping.LastName,
		&order.Shipping.Email,
		&order.Shipping.Phone,
		&order.Shipping.Street,
		&order.Shipping.City,
		&order.Shipping.State,
		&order.Shipping.ZipCode,
		&order.Shipping.Country,
		&order.Subtotal,
		&order.ShippingCost,
		&order.Tax,
		&order.Total,
		&order.PaymentStatus,
		&order.OrderStatus,
		&order.PaymentRef,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// FindByID retrieves an order by ID using parameterized queries
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	return order, nil
}

// ListByUser retrieves a user's orders, newest first
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}

// ListItems retrieves the immutable lines of an order
func (r *orderRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, price, quantity, subtotal
		FROM order_items
		WHERE order_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		item := domain.OrderItem{}
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Price,
			&item.Quantity,
			&item.Subtotal,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

// MarkPaymentCompleted records a successful payment and clears any residual
// items from the originating cart in one transaction. The update is gated on
// payment_status = 'pending', so a redelivered confirmation finds zero rows
// and reports applied=false instead of transitioning twice; a transient
// failure anywhere rolls both statements back, leaving the order pending so
// the next retry applies them together. The partial unique index on
// payment_ref catches the same reference landing on two orders concurrently;
// that also counts as already applied.
func (r *orderRepository) MarkPaymentCompleted(ctx context.Context, orderID, cartID uuid.UUID, paymentRef string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE orders
		SET payment_status = 'completed', order_status = 'processing', payment_ref = $2
		WHERE id = $1 AND payment_status = 'pending'
	`

	result, err := tx.ExecContext(ctx, query, orderID, paymentRef)
	if err != nil {
		if strings.Contains(err.Error(), "SQLSTATE 23505") {
			return false, nil
		}
		return false, fmt.Errorf("failed to mark payment completed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return false, fmt.Errorf("failed to clear cart after payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit payment completion: %w", err)
	}

	return true, nil
}

// MarkPaymentFailed records a failed payment attempt while it is still
// pending; completed orders are never downgraded.
func (r *orderRepository) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, paymentRef string) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = 'failed', payment_ref = $2
		WHERE id = $1 AND payment_status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, orderID, paymentRef)
	if err != nil {
		if strings.Contains(err.Error(), "SQLSTATE 23505") {
			return false, nil
		}
		return false, fmt.Errorf("failed to mark payment failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// Cancel marks an order cancelled. The predicate keeps cancellation out of
// reach once payment completed, even against a concurrent confirmation.
func (r *orderRepository) Cancel(ctx context.Context, orderID, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE orders
		SET order_status = 'cancelled'
		WHERE id = $1 AND user_id = $2 AND payment_status = 'pending' AND order_status = 'pending'
	`

	result, err := r.db.ExecContext(ctx, query, orderID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}
