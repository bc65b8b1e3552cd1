// Package api exposes the POS engine over HTTP. Handlers are a thin
// collaborator: they decode requests, delegate to the domain, and map domain
// errors to status codes. No business rule lives here.
package api

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kalder/pos-engine/internal/domain/product"
	"github.com/kalder/pos-engine/internal/domain/transaction"
	"github.com/kalder/pos-engine/internal/lookup"
	"github.com/kalder/pos-engine/internal/session"
)

// Metrics holds the instruments the handler records.
type Metrics struct {
	// Checkouts counts checkout attempts, labelled by result.
	Checkouts metric.Int64Counter
}

// Handler routes POS API requests to the domain services.
type Handler struct {
	products product.Repository
	lookup   *lookup.Service
	sessions *session.Registry
	txns     transaction.Repository
	metrics  Metrics
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	lookupSvc *lookup.Service,
	sessions *session.Registry,
	txns transaction.Repository,
	metrics Metrics,
) *Handler {
	return &Handler{
		products: products,
		lookup:   lookupSvc,
		sessions: sessions,
		txns:     txns,
		metrics:  metrics,
	}
}

// Routes registers all API endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/barcode/{code}", h.findByBarcode)

	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.getCart)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.closeSession)

	mux.HandleFunc("POST /api/sessions/{id}/items", h.addItem)
	mux.HandleFunc("PUT /api/sessions/{id}/items/{productID}", h.setQuantity)
	mux.HandleFunc("DELETE /api/sessions/{id}/items/{productID}", h.removeItem)
	mux.HandleFunc("DELETE /api/sessions/{id}/items", h.clearCart)

	mux.HandleFunc("POST /api/sessions/{id}/checkout", h.checkout)

	mux.HandleFunc("GET /api/transactions", h.listTransactions)
}

// recordCheckout increments the checkout counter with the attempt's result.
func (h *Handler) recordCheckout(r *http.Request, result string) {
	if h.metrics.Checkouts == nil {
		return
	}
	h.metrics.Checkouts.Add(r.Context(), 1,
		metric.WithAttributes(attribute.String("result", result)))
}
