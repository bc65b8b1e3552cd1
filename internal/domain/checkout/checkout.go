// Package checkout implements the checkout transaction manager: validation of
// a payment attempt, freezing of money amounts, and the single atomic commit
// that records the sale and decrements stock.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kalder/pos-engine/internal/domain/cart"
	"github.com/kalder/pos-engine/internal/domain/money"
	"github.com/kalder/pos-engine/internal/domain/transaction"
)

// State is the checkout manager's position in the sale lifecycle.
type State string

const (
	StateIdle       State = "IDLE"
	StateValidating State = "VALIDATING"
	StateCommitting State = "COMMITTING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether the state ends a checkout attempt.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Sentinel errors for checkout validation.
var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrCheckoutInProgress   = errors.New("checkout already in progress")
)

// InsufficientPaymentError indicates the tendered cash does not cover the
// total. It is user-correctable: the manager returns to Idle, the cart stays
// untouched, and the operator can collect more cash and retry.
type InsufficientPaymentError struct {
	Tendered decimal.Decimal
	Total    decimal.Decimal
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: tendered %s, total %s", e.Tendered, e.Total)
}

// CommitError wraps a persistence failure during the commit step. The attempt
// left no observable side effects, so the caller may retry with the same
// transaction id or abandon the sale; the cart is untouched either way.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return "commit sale: " + e.Err.Error()
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Payment describes how the customer pays. Tendered is consulted only for
// cash; card and digital always pay the exact total.
type Payment struct {
	Method   transaction.PaymentMethod
	Tendered decimal.Decimal
}

// Request carries everything needed for one checkout attempt.
type Request struct {
	Payment   Payment
	CashierID string

	// TransactionID, when set, is used as the committed transaction's id and
	// therefore as the idempotency key for retries. Leave empty to have the
	// manager generate one.
	TransactionID string
}

// Manager drives one session's checkout lifecycle:
//
//	Idle → Validating → Committing → Completed | Failed
//
// A validation failure returns to Idle. Once Committing has been issued the
// commit runs to completion or failure; it is not cancellable mid-flight.
// Manager is single-owner state like the cart it checks out and needs no
// internal locking.
type Manager struct {
	repo  transaction.Repository
	state State
	now   func() time.Time
}

// NewManager creates a checkout manager committing through repo.
func NewManager(repo transaction.Repository) *Manager {
	return &Manager{
		repo:  repo,
		state: StateIdle,
		now:   time.Now,
	}
}

// State returns the manager's current state. Terminal states are transient:
// the next Checkout call starts again from Idle.
func (m *Manager) State() State {
	return m.state
}

// Checkout validates the cart and payment, freezes the transaction record,
// and commits it atomically. On success the returned Transaction is fully
// populated and already persisted; the caller is responsible for clearing the
// cart. On any failure the cart is untouched and no side effect is visible.
func (m *Manager) Checkout(ctx context.Context, c *cart.Cart, req Request) (*transaction.Transaction, error) {
	if m.state == StateValidating || m.state == StateCommitting {
		return nil, ErrCheckoutInProgress
	}
	m.state = StateValidating

	txn, err := m.validate(c, req)
	if err != nil {
		m.state = StateIdle
		return nil, err
	}

	// Abandoning is allowed any time before the commit is issued.
	if err := ctx.Err(); err != nil {
		m.state = StateIdle
		return nil, err
	}

	m.state = StateCommitting

	decrements := make([]transaction.StockDecrement, len(txn.Items))
	for i, item := range txn.Items {
		decrements[i] = transaction.StockDecrement{ProductID: item.ProductID, Amount: item.Quantity}
	}

	// The commit is all-or-nothing at the store; cancelling the caller's
	// context mid-write must not abort it halfway through.
	err = m.repo.CommitSale(context.WithoutCancel(ctx), txn, decrements)
	switch {
	case err == nil:
	case errors.Is(err, transaction.ErrDuplicate):
		// Same transaction id ⇒ a previous attempt already applied this exact
		// commit. Report success so a blind retry never double-decrements.
	default:
		m.state = StateFailed
		return nil, &CommitError{Err: err}
	}

	m.state = StateCompleted
	return txn, nil
}

// validate checks the cart and payment and builds the frozen transaction
// record. Amounts are rounded to cents here, at the instant of freezing;
// everything before stays at full precision.
func (m *Manager) validate(c *cart.Cart, req Request) (*transaction.Transaction, error) {
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	if !req.Payment.Method.Valid() {
		return nil, errors.Wrapf(ErrInvalidPaymentMethod, "%q", req.Payment.Method)
	}

	totals, err := c.Totals()
	if err != nil {
		return nil, errors.Wrap(err, "compute totals")
	}
	frozen := totals.Rounded()

	paid := frozen.Total
	change := decimal.Zero
	if req.Payment.Method == transaction.PaymentCash {
		if req.Payment.Tendered.LessThan(frozen.Total) {
			return nil, &InsufficientPaymentError{Tendered: req.Payment.Tendered, Total: frozen.Total}
		}
		paid = req.Payment.Tendered
		change = money.Change(req.Payment.Tendered, frozen.Total)
	}

	id := req.TransactionID
	if id == "" {
		id = uuid.New().String()
	}

	items := make([]transaction.Item, len(lines))
	for i, l := range lines {
		items[i] = transaction.Item{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			UnitPrice: l.Product.Price.Round(2),
			Quantity:  l.Quantity,
		}
	}

	return &transaction.Transaction{
		ID:            id,
		Items:         items,
		Subtotal:      frozen.Subtotal,
		Tax:           frozen.Tax,
		Total:         frozen.Total,
		PaymentMethod: req.Payment.Method,
		CashierID:     req.CashierID,
		CustomerPaid:  paid,
		Change:        change,
		Timestamp:     m.now().UTC(),
	}, nil
}
