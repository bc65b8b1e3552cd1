package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalder/pos-engine/internal/domain/transaction"
)

const (
	insertTransactionSQL = `INSERT INTO transactions
		(id, items, subtotal, tax, total, payment_method, cashier_id, customer_paid, change_due, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	// The stock >= $2 guard rejects a decrement that would drive stock
	// negative; concurrent commits against the same row serialize on the row
	// lock, so the loser re-evaluates the guard against committed stock.
	decrementStockSQL = `UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	// Oversell variant: only existence is required, stock may go negative.
	decrementStockOversellSQL = `UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	listTransactionsSQL = `SELECT id, items, subtotal, tax, total, payment_method,
		cashier_id, customer_paid, change_due, ts
		FROM transactions ORDER BY ts DESC`

	uniqueViolationCode = "23505"
)

var _ transaction.Repository = (*TransactionRepository)(nil)

// TransactionRepository implements the atomic sale commit boundary on
// PostgreSQL. All writes of one sale happen inside a single pgx transaction.
type TransactionRepository struct {
	pool *pgxpool.Pool

	// allowOversell switches the stock guard off so a racing sale produces
	// negative stock instead of a rejected commit.
	allowOversell bool
}

// NewTransactionRepository returns a TransactionRepository that uses the
// given pool. When allowOversell is false (the default policy), a decrement
// that would drive stock negative fails the whole commit.
func NewTransactionRepository(pool *pgxpool.Pool, allowOversell bool) *TransactionRepository {
	return &TransactionRepository{pool: pool, allowOversell: allowOversell}
}

// CommitSale persists the transaction record and applies every stock
// decrement as one database transaction. Either all writes commit or the
// whole sale rolls back; no partial application is ever visible to readers.
//
// Failure modes:
//   - transaction.ErrDuplicate: a sale with this id was already committed.
//   - transaction.ErrProductMissing: a decremented product no longer exists.
//   - transaction.ErrInsufficientStock: the guard rejected a decrement.
func (r *TransactionRepository) CommitSale(ctx context.Context, txn *transaction.Transaction, decrements []transaction.StockDecrement) error {
	itemsJSON, err := json.Marshal(txn.Items)
	if err != nil {
		return errors.Wrap(err, "marshal transaction items")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin commit")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	_, err = tx.Exec(ctx, insertTransactionSQL,
		txn.ID, itemsJSON, txn.Subtotal, txn.Tax, txn.Total,
		txn.PaymentMethod, txn.CashierID, txn.CustomerPaid, txn.Change, txn.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return transaction.ErrDuplicate
		}
		return errors.Wrapf(err, "insert transaction %q", txn.ID)
	}

	stockSQL := decrementStockSQL
	if r.allowOversell {
		stockSQL = decrementStockOversellSQL
	}

	for _, d := range decrements {
		tag, err := tx.Exec(ctx, stockSQL, d.ProductID, d.Amount)
		if err != nil {
			return errors.Wrapf(err, "decrement stock for %q", d.ProductID)
		}
		if tag.RowsAffected() == 0 {
			return r.classifyRejection(ctx, tx, d.ProductID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrapf(err, "commit sale %q", txn.ID)
	}
	return nil
}

// classifyRejection distinguishes a vanished product from an exhausted one
// after a guarded UPDATE touched zero rows.
func (r *TransactionRepository) classifyRejection(ctx context.Context, tx pgx.Tx, productID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, productExistsSQL, productID).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check product %q", productID)
	}
	if !exists {
		return errors.Wrapf(transaction.ErrProductMissing, "product %q", productID)
	}
	return errors.Wrapf(transaction.ErrInsufficientStock, "product %q", productID)
}

// List returns all committed transactions, newest first.
func (r *TransactionRepository) List(ctx context.Context) ([]transaction.Transaction, error) {
	rows, err := r.pool.Query(ctx, listTransactionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	return pgx.CollectRows(rows, scanTransaction)
}

func scanTransaction(row pgx.CollectableRow) (transaction.Transaction, error) {
	var (
		t         transaction.Transaction
		itemsJSON []byte
	)
	err := row.Scan(
		&t.ID, &itemsJSON, &t.Subtotal, &t.Tax, &t.Total,
		&t.PaymentMethod, &t.CashierID, &t.CustomerPaid, &t.Change, &t.Timestamp,
	)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(itemsJSON, &t.Items); err != nil {
		return t, errors.Wrapf(err, "unmarshal items for %q", t.ID)
	}
	return t, nil
}
