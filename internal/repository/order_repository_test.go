package repository

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/pricing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func ensureOrderTables(t *testing.T) {
	t.Helper()

	ensureCartTables(t)

	_, err := testDB.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			order_number VARCHAR(40) UNIQUE NOT NULL,
			user_id UUID NOT NULL,
			cart_id UUID NOT NULL,
			first_name VARCHAR(100) NOT NULL,
			last_name VARCHAR(100) NOT NULL,
			email VARCHAR(255) NOT NULL,
			phone VARCHAR(50) NOT NULL,
			street VARCHAR(255) NOT NULL,
			city VARCHAR(100) NOT NULL,
			state VARCHAR(100) NOT NULL,
			zip_code VARCHAR(20) NOT NULL,
			country VARCHAR(100) NOT NULL,
			subtotal NUMERIC(10,2) NOT NULL,
			shipping_cost NUMERIC(10,2) NOT NULL,
			tax NUMERIC(10,2) NOT NULL,
			total NUMERIC(10,2) NOT NULL,
			payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			order_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			payment_ref VARCHAR(255),
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	require.NoError(t, err)

	_, err = testDB.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_payment_ref
		ON orders (payment_ref) WHERE payment_ref IS NOT NULL
	`)
	require.NoError(t, err)

	_, err = testDB.Exec(`
		CREATE TABLE IF NOT EXISTS order_items (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id UUID NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			price NUMERIC(10,2) NOT NULL,
			quantity INTEGER NOT NULL,
			subtotal NUMERIC(10,2) NOT NULL
		)
	`)
	require.NoError(t, err)
}

func testShippingAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Phone:     "555-0100",
		Street:    "1 Analytical Way",
		City:      "London",
		State:     "LDN",
		ZipCode:   "EC1A",
		Country:   "UK",
	}
}

// seedCheckout puts a priced cart in place and returns the order and items
// ready to pass to CreateWithItems, the way the order service assembles them.
func seedCheckout(t *testing.T, ctx context.Context, quantity int) (*domain.Order, []domain.OrderItem) {
	t.Helper()

	cartRepo := NewCartRepository(testDB)

	product := newTestProduct(t, ctx, "25.00")
	cart, err := cartRepo.GetOrCreate(ctx, uuid.New())
	require.NoError(t, err)
	require.NoError(t, cartRepo.UpsertItem(ctx, cart.ID, product.ID, quantity, product.Price))

	quote, err := pricing.Compute([]pricing.Line{{Price: product.Price, Quantity: quantity}})
	require.NoError(t, err)

	order := &domain.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-" + ulid.Make().String(),
		UserID:        cart.UserID,
		CartID:        cart.ID,
		Shipping:      testShippingAddress(),
		Subtotal:      quote.Subtotal,
		ShippingCost:  quote.ShippingCost,
		Tax:           quote.Tax,
		Total:         quote.Total,
		PaymentStatus: domain.PaymentStatusPending,
		OrderStatus:   domain.OrderStatusPending,
		CreatedAt:     time.Now(),
	}
	items := []domain.OrderItem{{
		ID:          uuid.New(),
		OrderID:     order.ID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Price:       product.Price,
		Quantity:    quantity,
		Subtotal:    pricing.LineSubtotal(product.Price, quantity),
	}}

	return order, items
}

func TestCreateWithItemsConsumesCart(t *testing.T) {
	ensureOrderTables(t)

	orderRepo := NewOrderRepository(testDB)
	cartRepo := NewCartRepository(testDB)
	ctx := context.Background()

	order, items := seedCheckout(t, ctx, 2)
	require.NoError(t, orderRepo.CreateWithItems(ctx, order, items))

	found, err := orderRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.OrderNumber, found.OrderNumber)
	require.Equal(t, domain.PaymentStatusPending, found.PaymentStatus)
	require.True(t, found.Total.Equal(order.Total))

	lines, err := orderRepo.ListItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, items[0].ProductName, lines[0].ProductName)

	remaining, err := cartRepo.ListItems(ctx, order.CartID)
	require.NoError(t, err)
	require.Empty(t, remaining, "checkout must consume the cart items it priced")
}

func TestCreateWithItemsRollsBackWhenCartChanged(t *testing.T) {
	ensureOrderTables(t)

	orderRepo := NewOrderRepository(testDB)
	cartRepo := NewCartRepository(testDB)
	ctx := context.Background()

	order, items := seedCheckout(t, ctx, 2)

	// A concurrent add bumps the quantity after pricing but before commit
	require.NoError(t, cartRepo.UpsertItem(ctx, order.CartID, items[0].ProductID, 1, items[0].Price))

	err := orderRepo.CreateWithItems(ctx, order, items)
	require.ErrorIs(t, err, ErrCartChanged)

	_, err = orderRepo.FindByID(ctx, order.ID)
	require.ErrorIs(t, err, ErrOrderNotFound, "failed checkout must leave no order behind")

	remaining, err := cartRepo.ListItems(ctx, order.CartID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, 3, remaining[0].Quantity, "failed checkout must leave the cart untouched")
}

func TestMarkPaymentCompletedAppliesOnce(t *testing.T) {
	ensureOrderTables(t)

	orderRepo := NewOrderRepository(testDB)
	cartRepo := NewCartRepository(testDB)
	ctx := context.Background()

	order, items := seedCheckout(t, ctx, 1)
	require.NoError(t, orderRepo.CreateWithItems(ctx, order, items))

	// An item added after checkout is residual; completion must clear it
	residual := newTestProduct(t, ctx, "5.00")
	require.NoError(t, cartRepo.UpsertItem(ctx, order.CartID, residual.ID, 1, residual.Price))

	ref := "pi_" + uuid.New().String()

	applied, err := orderRepo.MarkPaymentCompleted(ctx, order.ID, order.CartID, ref)
	require.NoError(t, err)
	require.True(t, applied)

	// Redelivery of the same confirmation finds nothing to do
	applied, err = orderRepo.MarkPaymentCompleted(ctx, order.ID, order.CartID, ref)
	require.NoError(t, err)
	require.False(t, applied)

	found, err := orderRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusCompleted, found.PaymentStatus)
	require.Equal(t, domain.OrderStatusProcessing, found.OrderStatus)
	require.Equal(t, ref, found.PaymentRef)

	remaining, err := cartRepo.ListItems(ctx, order.CartID)
	require.NoError(t, err)
	require.Empty(t, remaining, "completion clears residual cart items in the same transaction")
}

func TestMarkPaymentFailedNeverDowngradesCompleted(t *testing.T) {
	ensureOrderTables(t)

	orderRepo := NewOrderRepository(testDB)
	ctx := context.Background()

	order, items := seedCheckout(t, ctx, 1)
	require.NoError(t, orderRepo.CreateWithItems(ctx, order, items))

	ref := "pi_" + uuid.New().String()
	applied, err := orderRepo.MarkPaymentCompleted(ctx, order.ID, order.CartID, ref)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = orderRepo.MarkPaymentFailed(ctx, order.ID, ref)
	require.NoError(t, err)
	require.False(t, applied)

	found, err := orderRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusCompleted, found.PaymentStatus)
}

func TestDuplicatePaymentRefIsNotAnError(t *testing.T) {
	ensureOrderTables(t)

	orderRepo := NewOrderRepository(testDB)
	ctx := context.Background()

	first, firstItems := seedCheckout(t, ctx, 1)
	require.NoError(t, orderRepo.CreateWithItems(ctx, first, firstItems))
	second, secondItems := seedCheckout(t, ctx, 1)
	require.NoError(t, orderRepo.CreateWithItems(ctx, second, secondItems))

	ref := "pi_" + uuid.New().String()

	applied, err := orderRepo.MarkPaymentCompleted(ctx, first.ID, first.CartID, ref)
	require.NoError(t, err)
	require.True(t, applied)

	// The same reference landing on a different order hits the unique index
	// and is reported as already applied, not as a failure
	applied, err = orderRepo.MarkPaymentCompleted(ctx, second.ID, second.CartID, ref)
	require.NoError(t, err)
	require.False(t, applied)

	found, err := orderRepo.FindByID(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPending, found.PaymentStatus)
}

func TestCancelOnlyWhilePending(t *testing.T) {
	ensureOrderTables(t)

	orderRepo := NewOrderRepository(testDB)
	ctx := context.Background()

	order, items := seedCheckout(t, ctx, 1)
	require.NoError(t, orderRepo.CreateWithItems(ctx, order, items))

	// Another user cannot cancel it
	cancelled, err := orderRepo.Cancel(ctx, order.ID, uuid.New())
	require.NoError(t, err)
	require.False(t, cancelled)

	cancelled, err = orderRepo.Cancel(ctx, order.ID, order.UserID)
	require.NoError(t, err)
	require.True(t, cancelled)

	found, err := orderRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, found.OrderStatus)
}

func TestCancelLosesToCompletedPayment(t *testing.T) {
	ensureOrderTables(t)

	orderRepo := NewOrderRepository(testDB)
	ctx := context.Background()

	order, items := seedCheckout(t, ctx, 1)
	require.NoError(t, orderRepo.CreateWithItems(ctx, order, items))

	applied, err := orderRepo.MarkPaymentCompleted(ctx, order.ID, order.CartID, "pi_"+uuid.New().String())
	require.NoError(t, err)
	require.True(t, applied)

	cancelled, err := orderRepo.Cancel(ctx, order.ID, order.UserID)
	require.NoError(t, err)
	require.False(t, cancelled)

	found, err := orderRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, found.OrderStatus)
}

func TestListByUserNewestFirst(t *testing.T) {
	ensureOrderTables(t)

	orderRepo := NewOrderRepository(testDB)
	cartRepo := NewCartRepository(testDB)
	ctx := context.Background()

	userID := uuid.New()
	product := newTestProduct(t, ctx, "10.00")
	cart, err := cartRepo.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		require.NoError(t, cartRepo.UpsertItem(ctx, cart.ID, product.ID, 1, product.Price))

		quote, err := pricing.Compute([]pricing.Line{{Price: product.Price, Quantity: 1}})
		require.NoError(t, err)

		order := &domain.Order{
			ID:            uuid.New(),
			OrderNumber:   "ORD-" + ulid.Make().String(),
			UserID:        userID,
			CartID:        cart.ID,
			Shipping:      testShippingAddress(),
			Subtotal:      quote.Subtotal,
			ShippingCost:  quote.ShippingCost,
			Tax:           quote.Tax,
			Total:         quote.Total,
			PaymentStatus: domain.PaymentStatusPending,
			OrderStatus:   domain.OrderStatusPending,
			CreatedAt:     time.Now().Add(time.Duration(i) * time.Second),
		}
		items := []domain.OrderItem{{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    1,
			Subtotal:    pricing.LineSubtotal(product.Price, 1),
		}}
		require.NoError(t, orderRepo.CreateWithItems(ctx, order, items))
		ids = append(ids, order.ID)
	}

	orders, err := orderRepo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	require.Equal(t, ids[2], orders[0].ID)
	require.Equal(t, ids[0], orders[2].ID)
}
