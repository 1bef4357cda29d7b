// Package pricing computes order totals from cart lines. It is a pure
// function of its input so a stored order can always be re-derived and
// audited against it.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice    = errors.New("line price must not be negative")
	ErrInvalidQuantity = errors.New("line quantity must be at least 1")
)

var (
	// Orders above this subtotal ship free.
	freeShippingThreshold = decimal.NewFromInt(100)
	flatShippingRate      = decimal.NewFromInt(15)
	taxRate               = decimal.NewFromFloat(0.08)
)

// Line is one (unit price, quantity) pair to be priced.
type Line struct {
	Price    decimal.Decimal
	Quantity int
}

// Quote holds the computed totals, all rounded to 2 decimal places.
type Quote struct {
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
}

// Compute prices the given lines:
//
//	subtotal = Σ(price × quantity), rounded to 2dp
//	shipping = 0 if subtotal > 100.00, else flat 15.00
//	tax      = round(subtotal × 0.08, 2dp)
//	total    = subtotal + shipping + tax
func Compute(lines []Line) (Quote, error) {
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Price.IsNegative() {
			return Quote{}, ErrInvalidPrice
		}
		if line.Quantity < 1 {
			return Quote{}, ErrInvalidQuantity
		}
		subtotal = subtotal.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = subtotal.Round(2)

	shipping := flatShippingRate
	if subtotal.GreaterThan(freeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := subtotal.Mul(taxRate).Round(2)

	return Quote{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Tax:          tax,
		Total:        subtotal.Add(shipping).Add(tax),
	}, nil
}

// LineSubtotal returns price × quantity rounded to 2dp, used when deriving
// immutable order lines.
func LineSubtotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}
