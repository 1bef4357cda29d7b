package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/pay"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrGatewayNotConfigured = errors.New("payment gateway not configured")
	ErrPaymentNotComplete   = errors.New("payment has not completed")
	ErrOrderForbidden       = errors.New("order does not belong to this user")
)

var minorUnits = decimal.NewFromInt(100)

// IntentResponse carries what the client needs to drive the gateway's
// payment flow.
type IntentResponse struct {
	IntentID     string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
}

// PaymentService reconciles order payment state with the gateway.
type PaymentService interface {
	CreateIntent(ctx context.Context, requesterID, orderID uuid.UUID) (*IntentResponse, error)
	ConfirmPayment(ctx context.Context, requesterID, orderID uuid.UUID, intentID string) error
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type paymentService struct {
	orderRepo repository.OrderRepository
	gateway   pay.Gateway
	currency  string
}

// NewPaymentService creates a new instance of PaymentService. A nil gateway
// is valid and means payments are unconfigured.
func NewPaymentService(
	orderRepo repository.OrderRepository,
	gateway pay.Gateway,
	currency string,
) PaymentService {
	return &paymentService{
		orderRepo: orderRepo,
		gateway:   gateway,
		currency:  currency,
	}
}

// CreateIntent opens a payment intent at the gateway for the order's total.
// The order itself is not mutated; reconciliation happens on confirmation.
func (s *paymentService) CreateIntent(ctx context.Context, requesterID, orderID uuid.UUID) (*IntentResponse, error) {
	if s.gateway == nil {
		return nil, ErrGatewayNotConfigured
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return nil, repository.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.UserID != requesterID {
		return nil, ErrOrderForbidden
	}

	// Decimal amounts convert to integer minor units only here, at the
	// gateway boundary.
	amount := order.Total.Mul(minorUnits).Round(0).IntPart()

	intent, err := s.gateway.CreateIntent(ctx, amount, s.currency, map[string]string{
		"order_id": order.ID.String(),
		"user_id":  requesterID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &IntentResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// ConfirmPayment checks the intent with the gateway and, if it succeeded,
// transitions the order to completed/processing exactly once. Confirming an
// already-completed order is a no-op success.
func (s *paymentService) ConfirmPayment(ctx context.Context, requesterID, orderID uuid.UUID, intentID string) error {
	if s.gateway == nil {
		return ErrGatewayNotConfigured
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return repository.ErrOrderNotFound
		}
		return fmt.Errorf("failed to load order: %w", err)
	}

	if order.UserID != requesterID {
		return ErrOrderForbidden
	}

	if order.PaymentStatus == domain.PaymentStatusCompleted {
		return nil
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return fmt.Errorf("failed to retrieve payment intent: %w", err)
	}

	if intent.Status != pay.IntentStatusSucceeded {
		return ErrPaymentNotComplete
	}

	return s.completePayment(ctx, order, intent.ID)
}

// HandleWebhook authenticates and applies a gateway event. Verification over
// the raw bytes happens before anything is parsed out of the payload.
// Redelivered and unrecognized events are acknowledged without effect.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return ErrGatewayNotConfigured
	}

	event, err := s.gateway.VerifyEvent(payload, signature)
	if err != nil {
		return pay.ErrSignatureInvalid
	}

	switch event.Kind {
	case pay.EventPaymentSucceeded:
		order, ok, err := s.orderFromEvent(ctx, event)
		if err != nil || !ok {
			return err
		}
		return s.completePayment(ctx, order, event.IntentID)

	case pay.EventPaymentFailed:
		order, ok, err := s.orderFromEvent(ctx, event)
		if err != nil || !ok {
			return err
		}
		if _, err := s.orderRepo.MarkPaymentFailed(ctx, order.ID, event.IntentID); err != nil {
			return fmt.Errorf("failed to record payment failure: %w", err)
		}
		return nil

	default:
		// Unknown event kinds are fine; the gateway evolves faster than
		// this handler.
		return nil
	}
}

// orderFromEvent resolves the order an event refers to. Events without a
// usable order reference are acknowledged and skipped (ok=false).
func (s *paymentService) orderFromEvent(ctx context.Context, event *pay.Event) (*domain.Order, bool, error) {
	if event.OrderID == "" {
		return nil, false, nil
	}

	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		return nil, false, nil
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load order for event: %w", err)
	}

	return order, true, nil
}

// completePayment applies the pending→completed transition together with the
// clearing of residual items from the cart recorded on the order at creation
// time. Both happen in one repository transaction, so a transient failure
// leaves the order pending and the next retry or redelivery applies them as
// a pair; the conditional update makes duplicate deliveries no-ops.
func (s *paymentService) completePayment(ctx context.Context, order *domain.Order, paymentRef string) error {
	if _, err := s.orderRepo.MarkPaymentCompleted(ctx, order.ID, order.CartID, paymentRef); err != nil {
		return fmt.Errorf("failed to mark payment completed: %w", err)
	}
	return nil
}
