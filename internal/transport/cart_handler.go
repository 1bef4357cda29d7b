package transport

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddToCartRequest represents the add-to-cart request payload
type AddToCartRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// UpdateCartItemRequest represents the cart item update payload. A zero or
// negative quantity removes the item.
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// CartHandler handles HTTP requests for cart operations
type CartHandler struct {
	cartService service.CartService
	logger      *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(cartService service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		logger:      logger,
	}
}

// RegisterRoutes registers all cart routes
func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.GetCart)
		r.Post("/add", h.AddItem)
		r.Put("/update/{itemID}", h.UpdateItem)
		r.Delete("/remove/{itemID}", h.RemoveItem)
		r.Delete("/clear/{cartID}", h.ClearCart)
	})
}

// GetCart returns the authenticated user's cart, creating it on first access
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cart, err := h.cartService.GetCart(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to fetch cart", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to fetch cart")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

// AddItem adds a product to the authenticated user's cart
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AddToCartRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Add to cart validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	if err := h.cartService.AddItem(r.Context(), userID, productID, req.Quantity); err != nil {
		switch err {
		case repository.ErrProductNotFound:
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		case service.ErrInvalidQuantity:
			middleware.RespondWithError(w, http.StatusBadRequest, "quantity must be a positive integer")
		default:
			h.logger.Error("Failed to add item to cart", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to add to cart")
		}
		return
	}

	h.logger.Info("Item added to cart",
		zap.String("user_id", userID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("quantity", req.Quantity),
	)
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "added to cart"})
}

// UpdateItem sets an item's quantity; zero or less removes it
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid item ID")
		return
	}

	var req UpdateCartItemRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.cartService.UpdateItem(r.Context(), userID, itemID, req.Quantity); err != nil {
		switch err {
		case repository.ErrCartNotFound:
			middleware.RespondWithError(w, http.StatusNotFound, "cart not found")
		default:
			h.logger.Error("Failed to update cart item", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update cart")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "cart updated"})
}

// RemoveItem removes an item from the authenticated user's cart
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid item ID")
		return
	}

	if err := h.cartService.RemoveItem(r.Context(), userID, itemID); err != nil {
		switch err {
		case repository.ErrCartNotFound:
			middleware.RespondWithError(w, http.StatusNotFound, "cart not found")
		default:
			h.logger.Error("Failed to remove cart item", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to remove item")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "item removed from cart"})
}

// ClearCart removes every item from the authenticated user's cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cartID, err := uuid.Parse(chi.URLParam(r, "cartID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid cart ID")
		return
	}

	if err := h.cartService.ClearCart(r.Context(), userID, cartID); err != nil {
		switch err {
		case repository.ErrCartNotFound:
			middleware.RespondWithError(w, http.StatusNotFound, "cart not found")
		case service.ErrCartForbidden:
			middleware.RespondWithError(w, http.StatusForbidden, "cart does not belong to this user")
		default:
			h.logger.Error("Failed to clear cart", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to clear cart")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "cart cleared"})
}
