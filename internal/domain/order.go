package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus tracks reconciliation with the payment gateway.
// completed is terminal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// OrderStatus tracks fulfillment state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ShippingAddress holds the recipient fields captured at checkout.
type ShippingAddress struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required"`
	Street    string `json:"street" validate:"required"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	ZipCode   string `json:"zip_code" validate:"required"`
	Country   string `json:"country" validate:"required"`
}

// Order is an immutable snapshot of a checkout. Totals and items are fixed at
// creation; only the status fields and PaymentRef change afterwards, driven by
// payment reconciliation or cancellation. CartID records the cart the order was
// built from so reconciliation can clear residual items without trusting
// client input.
type Order struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrderNumber   string          `json:"order_number" db:"order_number"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	CartID        uuid.UUID       `json:"cart_id" db:"cart_id"`
	Shipping      ShippingAddress `json:"shipping_address"`
	Subtotal      decimal.Decimal `json:"subtotal" db:"subtotal"`
	ShippingCost  decimal.Decimal `json:"shipping_cost" db:"shipping_cost"`
	Tax           decimal.Decimal `json:"tax" db:"tax"`
	Total         decimal.Decimal `json:"total" db:"total"`
	PaymentStatus PaymentStatus   `json:"payment_status" db:"payment_status"`
	OrderStatus   OrderStatus     `json:"order_status" db:"order_status"`
	PaymentRef    string          `json:"payment_ref,omitempty" db:"payment_ref"`
	Items         []OrderItem     `json:"items,omitempty"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// OrderItem is an immutable order line. Product name and price are copied at
// order creation so later catalog changes never alter historical orders.
type OrderItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID   uuid.UUID       `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal" db:"subtotal"`
}
