// Package pay isolates the payment gateway behind a small port so the
// reconciliation logic can be exercised against a fake in tests. Monetary
// amounts cross this boundary in integer minor currency units; everything
// above it stays decimal.
package pay

import (
	"context"
	"errors"
)

var (
	// ErrSignatureInvalid means the webhook payload could not be
	// authenticated and must not be processed.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
)

// Intent status values as reported by the gateway.
const (
	IntentStatusSucceeded = "succeeded"
)

// Event kinds this core reacts to. Anything else is acknowledged and ignored.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Intent is the gateway's handle for an in-progress payment attempt.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Event is a verified webhook notification.
type Event struct {
	Kind     string
	IntentID string
	// OrderID is the order reference this core attached to the intent's
	// metadata at creation time. Empty if the event carries none.
	OrderID string
}

// Gateway is the payment processor protocol consumed by the reconciler.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	// VerifyEvent authenticates the raw payload against the signature
	// header before any business meaning is parsed from it.
	VerifyEvent(payload []byte, signature string) (*Event, error)
}
