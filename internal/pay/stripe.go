package pay

import (
	"context"
	"errors"
	"fmt"
	"net"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a gateway client from the configured keys.
// Returns nil if no secret key is configured; callers treat a nil gateway
// as "payments unavailable".
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	if secretKey == "" {
		return nil
	}

	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeGateway{
		api:           api,
		webhookSecret: webhookSecret,
	}
}

// CreateIntent creates a payment intent for the given amount in minor units
func (g *StripeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

// RetrieveIntent fetches the current state of a payment intent
func (g *StripeGateway) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	pi, err := g.api.PaymentIntents.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}, nil
}

// VerifyEvent checks the signature over the raw payload and, only then,
// extracts the event kind and intent reference.
func (g *StripeGateway) VerifyEvent(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, ErrSignatureInvalid
	}

	out := &Event{Kind: string(event.Type)}

	if id, ok := event.Data.Object["id"].(string); ok {
		out.IntentID = id
	}
	if meta, ok := event.Data.Object["metadata"].(map[string]interface{}); ok {
		if orderID, ok := meta["order_id"].(string); ok {
			out.OrderID = orderID
		}
	}

	return out, nil
}

// IsRetryable reports whether a gateway failure is transient (network or
// server-side) rather than a definitive rejection.
func IsRetryable(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
