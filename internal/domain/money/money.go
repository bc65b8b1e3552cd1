// Package money implements the deterministic price arithmetic for carts and
// transactions. All computation uses shopspring/decimal at full precision;
// rounding to cents happens only when a value is frozen for presentation or
// persistence.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxRate is the flat sales tax applied to every sale.
var TaxRate = decimal.RequireFromString("0.08")

// InvalidLineItemError indicates a line item with a negative price or a
// non-positive quantity was passed to the calculator.
type InvalidLineItemError struct {
	Index    int
	Price    decimal.Decimal
	Quantity int
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item %d: price=%s quantity=%d", e.Index, e.Price, e.Quantity)
}

// Line is a (unit price, quantity) pair for totals calculation.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals holds the computed amounts for a set of lines. Values are kept at
// full precision; use Rounded before displaying or persisting them.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Rounded returns a copy with every amount rounded to two fractional digits.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal: t.Subtotal.Round(2),
		Tax:      t.Tax.Round(2),
		Total:    t.Total.Round(2),
	}
}

// Calculate computes subtotal, tax, and total for the given lines.
//
//	subtotal = Σ(price × quantity)
//	tax      = subtotal × TaxRate
//	total    = subtotal + tax
//
// It is pure and deterministic. The only failure mode is a line with a
// negative price or a quantity below 1.
func Calculate(lines []Line) (Totals, error) {
	subtotal := decimal.Zero
	for i, l := range lines {
		if l.UnitPrice.IsNegative() || l.Quantity <= 0 {
			return Totals{}, &InvalidLineItemError{Index: i, Price: l.UnitPrice, Quantity: l.Quantity}
		}
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	tax := subtotal.Mul(TaxRate)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}, nil
}

// Change returns the cash change for the given tender against a total,
// floored at zero. Overpayment yields change; method handling (card/digital
// paying exact total) belongs to the checkout manager.
func Change(tendered, total decimal.Decimal) decimal.Decimal {
	change := tendered.Sub(total)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}
