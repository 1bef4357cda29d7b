package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateOrderRequest represents the checkout request payload
type CreateOrderRequest struct {
	ShippingAddress domain.ShippingAddress `json:"shipping_address" validate:"required"`
}

// OrderHandler handles HTTP requests for order operations
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers all order routes
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/create", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{orderID}", h.GetOrder)
		r.Post("/{orderID}/cancel", h.CancelOrder)
	})
}

// CreateOrder converts the authenticated user's cart into an order
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Create order validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	confirmation, err := h.orderService.CreateOrder(r.Context(), userID, req.ShippingAddress)
	if err != nil {
		switch err {
		case service.ErrInvalidAddress:
			middleware.RespondWithError(w, http.StatusBadRequest, "shipping address is incomplete")
		case repository.ErrCartNotFound:
			middleware.RespondWithError(w, http.StatusBadRequest, "cart not found")
		case service.ErrCartEmpty:
			middleware.RespondWithError(w, http.StatusBadRequest, "cart is empty")
		case repository.ErrCartChanged:
			middleware.RespondWithError(w, http.StatusConflict, "cart changed during checkout, please retry")
		default:
			h.logger.Error("Failed to create order", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create order")
		}
		return
	}

	h.logger.Info("Order created",
		zap.String("user_id", userID.String()),
		zap.String("order_number", confirmation.OrderNumber),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, confirmation)
}

// ListOrders returns the authenticated user's orders, newest first
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.orderService.ListOrders(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to fetch orders")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(orders),
		"orders": orders,
	})
}

// GetOrder returns one of the authenticated user's orders with its items
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		switch err {
		case repository.ErrOrderNotFound:
			middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		default:
			h.logger.Error("Failed to fetch order", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to fetch order")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// CancelOrder cancels a pending, unpaid order
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	if err := h.orderService.CancelOrder(r.Context(), userID, orderID); err != nil {
		switch err {
		case repository.ErrOrderNotFound:
			middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		case service.ErrOrderNotCancellable:
			middleware.RespondWithError(w, http.StatusConflict, "order can no longer be cancelled")
		default:
			h.logger.Error("Failed to cancel order", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to cancel order")
		}
		return
	}

	h.logger.Info("Order cancelled",
		zap.String("user_id", userID.String()),
		zap.String("order_id", orderID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "order cancelled"})
}
