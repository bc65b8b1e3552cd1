package api

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// listTransactions returns the sale history, newest first. Read-only; feeds
// the reporting and receipt surfaces.
func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.txns.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List transactions failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "history unavailable")
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range txns {
				encodeTransaction(e, &txns[i])
			}
		})
	})
}
