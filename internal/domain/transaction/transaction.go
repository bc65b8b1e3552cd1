package transaction

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for the atomic sale commit.
var (
	// ErrProductMissing means a product referenced by a stock decrement no
	// longer exists. The whole commit must fail rather than silently skip the
	// line, or inventory truth would drift.
	ErrProductMissing = errors.New("product missing at commit time")

	// ErrInsufficientStock means a decrement would drive stock negative and
	// oversell is not allowed. The whole commit is rolled back.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDuplicate means a transaction with the same id was already committed.
	// The transaction id doubles as the idempotency key: a retried commit that
	// hits this error has already been applied exactly once.
	ErrDuplicate = errors.New("transaction already committed")
)

// PaymentMethod enumerates the supported tender types.
type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentDigital PaymentMethod = "digital"
)

// Valid reports whether m is one of the known payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentDigital:
		return true
	}
	return false
}

// Item is a frozen line of a committed sale.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Transaction is the immutable record of one completed sale. It is created
// exactly once per successful checkout and never mutated or deleted by the
// engine; retention is an external concern.
type Transaction struct {
	ID            string
	Items         []Item
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	CashierID     string
	CustomerPaid  decimal.Decimal
	Change        decimal.Decimal
	Timestamp     time.Time
}

// StockDecrement is one stock adjustment applied as part of a sale commit.
type StockDecrement struct {
	ProductID string
	Amount    int
}

// Repository is the persistence commit boundary for sales.
type Repository interface {
	// CommitSale atomically persists the transaction record and applies every
	// stock decrement. Either all writes become visible or none do; a partial
	// application must never be observable by other readers.
	CommitSale(ctx context.Context, txn *Transaction, decrements []StockDecrement) error

	// List returns all transactions ordered by timestamp, newest first.
	List(ctx context.Context) ([]Transaction, error)
}
