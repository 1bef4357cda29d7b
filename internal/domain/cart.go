package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is the per-user pre-purchase collection. One row per user, created
// lazily on first access and emptied (never deleted) at checkout.
type Cart struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CartItem holds a product selection. Price is the unit price captured when
// the item was added; it is never re-read from the catalog.
type CartItem struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	CartID    uuid.UUID       `json:"cart_id" db:"cart_id"`
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// CartItemView joins a cart item with live product data for display.
// Quantity and Price come from the snapshot; the rest tracks the catalog.
type CartItemView struct {
	CartItem
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	ImageURL     string          `json:"image_url"`
	Stock        int             `json:"stock"`
}

// CartView is what viewCart returns to the client.
type CartView struct {
	ID     uuid.UUID      `json:"id"`
	UserID uuid.UUID      `json:"user_id"`
	Items  []CartItemView `json:"items"`
}
