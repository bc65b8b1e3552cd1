package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kalder/pos-engine/internal/domain/checkout"
	"github.com/kalder/pos-engine/internal/domain/transaction"
)

// checkoutRequest carries the payment selection for one checkout attempt.
// transaction_id is optional; clients that want safe retries supply their own
// id and reuse it when retrying.
type checkoutRequest struct {
	Method        string
	Tendered      decimal.Decimal
	TransactionID string
}

func decodeCheckout(data []byte) (checkoutRequest, error) {
	var req checkoutRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "payment_method":
			v, err := d.Str()
			req.Method = v
			return err
		case "tendered":
			v, err := d.Str()
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(v)
			if err != nil {
				return errors.Wrap(err, "tendered")
			}
			req.Tendered = amount
			return nil
		case "transaction_id":
			v, err := d.Str()
			req.TransactionID = v
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

// checkout runs the session's checkout state machine and maps its outcome:
// on success the cart is cleared and the committed transaction returned; any
// failure leaves the cart intact so the operator can correct and retry.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body")
		return
	}
	req, err := decodeCheckout(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Tendered.IsNegative() {
		writeError(w, r, http.StatusBadRequest, "tendered must not be negative")
		return
	}

	s.Lock()
	defer s.Unlock()

	txn, err := s.Checkout.Checkout(r.Context(), s.Cart, checkout.Request{
		Payment: checkout.Payment{
			Method:   transaction.PaymentMethod(req.Method),
			Tendered: req.Tendered,
		},
		CashierID:     s.CashierID,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	// Committed: the completed checkout owns clearing the cart.
	s.Cart.Clear()
	h.recordCheckout(r, "completed")

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeTransaction(e, txn)
	})
}

// writeCheckoutError maps domain checkout errors onto the API taxonomy.
func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var ipErr *checkout.InsufficientPaymentError
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, r, http.StatusBadRequest, "cart is empty")

	case errors.Is(err, checkout.ErrInvalidPaymentMethod):
		writeError(w, r, http.StatusBadRequest, "invalid payment method")

	case errors.As(err, &ipErr):
		writeJSON(w, r, http.StatusPaymentRequired, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusPaymentRequired) })
				e.Field("message", func(e *jx.Encoder) { e.Str("insufficient payment") })
				encodeDecimalField(e, "tendered", ipErr.Tendered.StringFixed(2))
				encodeDecimalField(e, "total", ipErr.Total.StringFixed(2))
			})
		})

	case errors.Is(err, transaction.ErrInsufficientStock):
		h.recordCheckout(r, "stock_exhausted")
		writeError(w, r, http.StatusConflict, "insufficient stock")

	case errors.Is(err, transaction.ErrProductMissing):
		h.recordCheckout(r, "failed")
		writeError(w, r, http.StatusConflict, "product no longer exists")

	default:
		h.recordCheckout(r, "failed")
		zctx.From(r.Context()).Error("Checkout commit failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "commit failed, sale not recorded; retry or abandon")
	}
}
