package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrCartItemNotFound = errors.New("cart item not found")
)

// CartRepository defines the interface for cart data access
type CartRepository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	UpsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int, price decimal.Decimal) error
	FindItem(ctx context.Context, itemID uuid.UUID) (*domain.CartItem, error)
	SetItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	ListItems(ctx context.Context, cartID uuid.UUID) ([]*domain.CartItem, error)
	ListItemViews(ctx context.Context, cartID uuid.UUID) ([]domain.CartItemView, error)
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db *sql.DB) CartRepository {
	return &cartRepository{db: db}
}

// GetOrCreate returns the user's cart, inserting an empty one if none exists.
// The insert races on carts(user_id) UNIQUE, so concurrent callers for the
// same user converge on a single row.
func (r *cartRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	insert := `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
	`

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, insert, uuid.New(), userID, now); err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	return r.FindByUserID(ctx, userID)
}

// FindByUserID retrieves a user's cart using parameterized queries
func (r *cartRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	query := `
		SELECT id, user_id, created_at, updated_at
		FROM carts
		WHERE user_id = $1
	`

	cart := &domain.Cart{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}

	return cart, nil
}

// UpsertItem inserts a cart item capturing the given unit price, or, when a
// row for (cart, product) already exists, atomically accumulates the quantity.
// The increment happens inside the statement so concurrent adds never drop
// each other's contribution.
func (r *cartRepository) UpsertItem(ctx context.Context, cartID, productID uuid.UUID, quantity int, price decimal.Decimal) error {
	query := `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`

	_, err := r.db.ExecContext(ctx, query, uuid.New(), cartID, productID, quantity, price, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}

	return nil
}

// FindItem retrieves a cart item by ID using parameterized queries
func (r *cartRepository) FindItem(ctx context.Context, itemID uuid.UUID) (*domain.CartItem, error) {
	query := `
		SELECT id, cart_id, product_id, quantity, price, created_at, updated_at
		FROM cart_items
		WHERE id = $1
	`

	item := &domain.CartItem{}
	err := r.db.QueryRowContext(ctx, query, itemID).Scan(
		&item.ID,
		&item.CartID,
		&item.ProductID,
		&item.Quantity,
		&item.Price,
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

// SetItemQuantity sets the quantity of an item. The cart_id predicate scopes
// the update to the owner's cart. Updating an absent item is not an error.
func (r *cartRepository) SetItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) error {
	query := `UPDATE cart_items SET quantity = $3 WHERE id = $2 AND cart_id = $1`

	if _, err := r.db.ExecContext(ctx, query, cartID, itemID, quantity); err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}

	return nil
}

// DeleteItem removes an item from the cart. Deleting an already-absent item
// is not an error.
func (r *cartRepository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	query := `DELETE FROM cart_items WHERE id = $2 AND cart_id = $1`

	if _, err := r.db.ExecContext(ctx, query, cartID, itemID); err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}

	return nil
}

// DeleteItems removes every item from the cart; the cart row itself persists
func (r *cartRepository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	query := `DELETE FROM cart_items WHERE cart_id = $1`

	if _, err := r.db.ExecContext(ctx, query, cartID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}

// ListItems retrieves the raw cart item snapshots
func (r *cartRepository) ListItems(ctx context.Context, cartID uuid.UUID) ([]*domain.CartItem, error) {
	query := `
		SELECT id, cart_id, product_id, quantity, price, created_at, updated_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer rows.Close()

	items := []*domain.CartItem{}
	for rows.Next() {
		item := &domain.CartItem{}
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.Quantity,
			&item.Price,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart items: %w", err)
	}

	return items, nil
}

// ListItemViews retrieves cart items joined to live product data for display.
// Quantity and price come from the snapshot, the rest from the catalog.
func (r *cartRepository) ListItemViews(ctx context.Context, cartID uuid.UUID) ([]domain.CartItemView, error) {
	query := `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price,
		       ci.created_at, ci.updated_at,
		       p.name, p.price, p.image_url, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart item views: %w", err)
	}
	defer rows.Close()

	views := []domain.CartItemView{}
	for rows.Next() {
		view := domain.CartItemView{}
		err := rows.Scan(
			&view.ID,
			&view.CartID,
			&view.ProductID,
			&view.Quantity,
			&view.Price,
			&view.CreatedAt,
			&view.UpdatedAt,
			&view.ProductName,
			&view.ProductPrice,
			&view.ImageURL,
			&view.Stock,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item view: %w", err)
		}
		views = append(views, view)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart item views: %w", err)
	}

	return views, nil
}
