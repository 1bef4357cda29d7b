package transport

import (
	"io"
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/pay"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Webhook payloads larger than this are rejected unread.
const maxWebhookBody = 1 << 20

// CreateIntentRequest represents the payment intent request payload
type CreateIntentRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

// ConfirmPaymentRequest represents the payment confirmation payload
type ConfirmPaymentRequest struct {
	OrderID         string `json:"order_id" validate:"required,uuid"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

// PaymentHandler handles HTTP requests for payment operations
type PaymentHandler struct {
	paymentService service.PaymentService
	publishableKey string
	logger         *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService service.PaymentService, publishableKey string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		publishableKey: publishableKey,
		logger:         logger,
	}
}

// RegisterRoutes registers all payment routes. The webhook stays outside the
// auth middleware; its authenticity comes from the signature check instead.
func (h *PaymentHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/payment", func(r chi.Router) {
		r.Post("/webhook", h.HandleWebhook)
		r.Get("/config", h.GetConfig)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/create-intent", h.CreateIntent)
			r.Post("/confirm", h.ConfirmPayment)
		})
	})
}

// CreateIntent opens a payment intent for one of the caller's orders
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateIntentRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	intent, err := h.paymentService.CreateIntent(r.Context(), userID, orderID)
	if err != nil {
		switch err {
		case service.ErrGatewayNotConfigured:
			middleware.RespondWithError(w, http.StatusBadRequest, "payment gateway not configured")
		case repository.ErrOrderNotFound:
			middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		case service.ErrOrderForbidden:
			middleware.RespondWithError(w, http.StatusForbidden, "order does not belong to this user")
		default:
			if pay.IsRetryable(err) {
				h.logger.Warn("Payment gateway temporarily unavailable", zap.Error(err))
				w.Header().Set("Retry-After", "5")
				middleware.RespondWithError(w, http.StatusServiceUnavailable, "payment gateway temporarily unavailable, retry shortly")
				return
			}
			h.logger.Error("Failed to create payment intent", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create payment intent")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, intent)
}

// ConfirmPayment reconciles an order against the gateway's intent state
func (h *PaymentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserUUID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ConfirmPaymentRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	if err := h.paymentService.ConfirmPayment(r.Context(), userID, orderID, req.PaymentIntentID); err != nil {
		switch err {
		case service.ErrGatewayNotConfigured:
			middleware.RespondWithError(w, http.StatusBadRequest, "payment gateway not configured")
		case repository.ErrOrderNotFound:
			middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		case service.ErrOrderForbidden:
			middleware.RespondWithError(w, http.StatusForbidden, "order does not belong to this user")
		case service.ErrPaymentNotComplete:
			middleware.RespondWithError(w, http.StatusBadRequest, "payment not successful")
		default:
			if pay.IsRetryable(err) {
				h.logger.Warn("Payment gateway temporarily unavailable", zap.Error(err))
				w.Header().Set("Retry-After", "5")
				middleware.RespondWithError(w, http.StatusServiceUnavailable, "payment gateway temporarily unavailable, retry shortly")
				return
			}
			h.logger.Error("Failed to confirm payment", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to confirm payment")
		}
		return
	}

	h.logger.Info("Payment confirmed",
		zap.String("user_id", userID.String()),
		zap.String("order_id", orderID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "payment successful"})
}

// HandleWebhook receives gateway event notifications. The raw body is handed
// to the service untouched; signature verification needs the exact bytes.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "failed to read payload")
		return
	}

	signature := r.Header.Get("Stripe-Signature")

	if err := h.paymentService.HandleWebhook(r.Context(), payload, signature); err != nil {
		switch err {
		case pay.ErrSignatureInvalid:
			h.logger.Warn("Webhook signature verification failed")
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid signature")
		case service.ErrGatewayNotConfigured:
			middleware.RespondWithError(w, http.StatusBadRequest, "payment gateway not configured")
		default:
			h.logger.Error("Failed to process webhook", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to process webhook")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// GetConfig returns the gateway's publishable key for browser clients
func (h *PaymentHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{
		"publishable_key": h.publishableKey,
	})
}
