// Package cart implements the in-memory cart store: an ordered collection of
// (product, quantity) lines owned by a single cashier session. The cart never
// talks to persistence; stock availability is only checked at commit time.
package cart

import (
	"github.com/go-faster/errors"

	"github.com/kalder/pos-engine/internal/domain/money"
	"github.com/kalder/pos-engine/internal/domain/product"
)

// ErrInvalidQuantity is returned by AddItem for a quantity below 1.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// Line is one (product snapshot, quantity) pair in the cart.
// Invariant: Quantity >= 1; a line whose quantity drops to 0 is removed.
type Line struct {
	Product  product.Product
	Quantity int
}

// Cart holds the ordered lines of one active session. At most one line exists
// per product id; adding a product already in the cart merges quantities.
//
// Cart is single-owner state and performs no internal locking; the session
// registry guarantees one goroutine mutates a given cart at a time.
type Cart struct {
	lines []Line
	index map[string]int // product id -> position in lines
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{index: make(map[string]int)}
}

// AddItem appends a line for the product or, when the product is already
// present, increases the existing line's quantity. Stock availability is not
// enforced here: stock may change between add-to-cart and checkout, so the
// authoritative check happens at commit.
func (c *Cart) AddItem(p product.Product, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	if i, ok := c.index[p.ID]; ok {
		c.lines[i].Quantity += quantity
		return nil
	}

	c.index[p.ID] = len(c.lines)
	c.lines = append(c.lines, Line{Product: p, Quantity: quantity})
	return nil
}

// SetQuantity sets a line's quantity directly. A quantity of 0 or less removes
// the line. An unknown product id is a no-op so stale UI updates don't turn
// into errors.
func (c *Cart) SetQuantity(productID string, quantity int) {
	i, ok := c.index[productID]
	if !ok {
		return
	}
	if quantity <= 0 {
		c.removeAt(i)
		return
	}
	c.lines[i].Quantity = quantity
}

// RemoveItem removes the line for the product if present. Idempotent.
func (c *Cart) RemoveItem(productID string) {
	if i, ok := c.index[productID]; ok {
		c.removeAt(i)
	}
}

// Clear empties the cart. Called after a committed or abandoned checkout.
func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[string]int)
}

// removeAt deletes the line at position i preserving the order of the rest.
func (c *Cart) removeAt(i int) {
	delete(c.index, c.lines[i].Product.ID)
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	for j := i; j < len(c.lines); j++ {
		c.index[c.lines[j].Product.ID] = j
	}
}

// Lines returns a copy of the cart's lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// ItemCount returns the sum of quantities across all lines.
func (c *Cart) ItemCount() int {
	count := 0
	for _, l := range c.lines {
		count += l.Quantity
	}
	return count
}

// Totals recomputes subtotal, tax, and total from the current lines via the
// money calculator. Nothing is cached, so the result always reflects the
// latest mutation. Errors are impossible for lines admitted by AddItem with a
// non-negative catalog price.
func (c *Cart) Totals() (money.Totals, error) {
	lines := make([]money.Line, len(c.lines))
	for i, l := range c.lines {
		lines[i] = money.Line{UnitPrice: l.Product.Price, Quantity: l.Quantity}
	}
	return money.Calculate(lines)
}
