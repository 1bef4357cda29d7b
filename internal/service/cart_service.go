package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrCartForbidden   = errors.New("cart does not belong to this user")
)

// CartService defines the interface for cart business logic
type CartService interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*domain.CartView, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error
	ClearCart(ctx context.Context, userID, cartID uuid.UUID) error
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

// NewCartService creates a new instance of CartService
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

// GetCart returns the user's cart, creating an empty one on first access.
// Items are joined to live product data; quantity and price stay from the
// add-time snapshot.
func (s *cartService) GetCart(ctx context.Context, userID uuid.UUID) (*domain.CartView, error) {
	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	items, err := s.cartRepo.ListItemViews(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}

	return &domain.CartView{
		ID:     cart.ID,
		UserID: cart.UserID,
		Items:  items,
	}, nil
}

// AddItem adds quantity of a product to the user's cart, capturing the
// product's current unit price. Adding a product already in the cart
// accumulates onto the existing line.
func (s *cartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if err == repository.ErrProductNotFound {
			return repository.ErrProductNotFound
		}
		return fmt.Errorf("failed to load product: %w", err)
	}

	cart, err := s.cartRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get cart: %w", err)
	}

	if err := s.cartRepo.UpsertItem(ctx, cart.ID, productID, quantity, product.Price); err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}

	return nil
}

// UpdateItem sets an item's quantity; zero or negative deletes the item.
// The item is addressed through the caller's own cart, so one user can
// never touch another's items.
func (s *cartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) error {
	cart, err := s.cartRepo.FindByUserID(ctx, userID)
	if err != nil {
		if err == repository.ErrCartNotFound {
			return repository.ErrCartNotFound
		}
		return fmt.Errorf("failed to load cart: %w", err)
	}

	if quantity <= 0 {
		if err := s.cartRepo.DeleteItem(ctx, cart.ID, itemID); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		return nil
	}

	if err := s.cartRepo.SetItemQuantity(ctx, cart.ID, itemID, quantity); err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	return nil
}

// RemoveItem deletes an item from the user's cart; removing an item that is
// already gone is not an error.
func (s *cartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) error {
	cart, err := s.cartRepo.FindByUserID(ctx, userID)
	if err != nil {
		if err == repository.ErrCartNotFound {
			return repository.ErrCartNotFound
		}
		return fmt.Errorf("failed to load cart: %w", err)
	}

	if err := s.cartRepo.DeleteItem(ctx, cart.ID, itemID); err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	return nil
}

// ClearCart deletes every item from the given cart after checking the cart
// belongs to the caller. The cart row itself persists.
func (s *cartService) ClearCart(ctx context.Context, userID, cartID uuid.UUID) error {
	cart, err := s.cartRepo.FindByUserID(ctx, userID)
	if err != nil {
		if err == repository.ErrCartNotFound {
			return repository.ErrCartNotFound
		}
		return fmt.Errorf("failed to load cart: %w", err)
	}

	if cart.ID != cartID {
		return ErrCartForbidden
	}

	if err := s.cartRepo.DeleteItems(ctx, cart.ID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}
