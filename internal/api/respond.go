package api

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/kalder/pos-engine/internal/domain/cart"
	"github.com/kalder/pos-engine/internal/domain/money"
	"github.com/kalder/pos-engine/internal/domain/product"
	"github.com/kalder/pos-engine/internal/domain/transaction"
)

// maxBodySize bounds request bodies; cart and checkout payloads are tiny.
const maxBodySize = 1 << 16

// writeJSON encodes a response body built by fn and writes it with the given
// status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		zctx.From(r.Context()).Debug("Response write failed", zap.Error(err))
	}
}

// writeError writes the standard error envelope {code, message}.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}

// readBody reads and returns a size-capped request body.
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodySize))
}

// --- Encoding helpers ---

func encodeDecimalField(e *jx.Encoder, name, value string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(value) })
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		encodeDecimalField(e, "price", p.Price.StringFixed(2))
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("barcode", func(e *jx.Encoder) { e.Str(p.Barcode) })
		e.Field("stock", func(e *jx.Encoder) { e.Int32(p.Stock) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("image_url", func(e *jx.Encoder) { e.Str(p.ImageURL) })
		if p.Supplier != nil {
			e.Field("supplier", func(e *jx.Encoder) { e.Str(*p.Supplier) })
		}
		if p.MinStock != nil {
			e.Field("min_stock", func(e *jx.Encoder) { e.Int32(*p.MinStock) })
		}
		e.Field("low_stock", func(e *jx.Encoder) { e.Bool(p.LowStock()) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(p.Active) })
	})
}

func encodeTotals(e *jx.Encoder, t money.Totals) {
	rounded := t.Rounded()
	e.Obj(func(e *jx.Encoder) {
		encodeDecimalField(e, "subtotal", rounded.Subtotal.StringFixed(2))
		encodeDecimalField(e, "tax", rounded.Tax.StringFixed(2))
		encodeDecimalField(e, "total", rounded.Total.StringFixed(2))
	})
}

func encodeCart(e *jx.Encoder, sessionID string, lines []cart.Line, itemCount int, totals money.Totals) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("session_id", func(e *jx.Encoder) { e.Str(sessionID) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range lines {
					l := lines[i]
					e.Obj(func(e *jx.Encoder) {
						e.Field("product", func(e *jx.Encoder) { encodeProduct(e, &l.Product) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					})
				}
			})
		})
		e.Field("item_count", func(e *jx.Encoder) { e.Int(itemCount) })
		e.Field("totals", func(e *jx.Encoder) { encodeTotals(e, totals) })
	})
}

func encodeTransaction(e *jx.Encoder, t *transaction.Transaction) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(t.ID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range t.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
						encodeDecimalField(e, "unit_price", item.UnitPrice.StringFixed(2))
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
					})
				}
			})
		})
		encodeDecimalField(e, "subtotal", t.Subtotal.StringFixed(2))
		encodeDecimalField(e, "tax", t.Tax.StringFixed(2))
		encodeDecimalField(e, "total", t.Total.StringFixed(2))
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(t.PaymentMethod)) })
		e.Field("cashier_id", func(e *jx.Encoder) { e.Str(t.CashierID) })
		encodeDecimalField(e, "customer_paid", t.CustomerPaid.StringFixed(2))
		encodeDecimalField(e, "change", t.Change.StringFixed(2))
		e.Field("timestamp", func(e *jx.Encoder) { e.Str(t.Timestamp.Format("2006-01-02T15:04:05.000Z07:00")) })
	})
}
