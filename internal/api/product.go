package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/kalder/pos-engine/internal/domain/product"
)

// listProducts returns every active catalog product.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListActive(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List products failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				encodeProduct(e, &products[i])
			}
		})
	})
}

// findByBarcode resolves a scanned or typed barcode. An unknown code is a
// plain 404, not a fault.
func (h *Handler) findByBarcode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	p, err := h.lookup.FindByBarcode(r.Context(), code)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "no product with barcode "+code)
			return
		}
		zctx.From(r.Context()).Error("Barcode lookup failed", zap.String("barcode", code), zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}
