package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalder/pos-engine/internal/domain/product"
	"github.com/kalder/pos-engine/internal/domain/transaction"
	"github.com/kalder/pos-engine/internal/lookup"
	"github.com/kalder/pos-engine/internal/session"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID      map[string]*product.Product
	byBarcode map[string]*product.Product
	listErr   error
}

func (m *mockProductRepo) ListActive(_ context.Context) ([]product.Product, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByBarcode(_ context.Context, barcode string) (*product.Product, error) {
	p, ok := m.byBarcode[barcode]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) ListBarcodes(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(m.byBarcode))
	for b := range m.byBarcode {
		out = append(out, b)
	}
	return out, nil
}

func (m *mockProductRepo) Create(_ context.Context, _ *product.Product) error { return nil }
func (m *mockProductRepo) Update(_ context.Context, _ *product.Product) error { return nil }
func (m *mockProductRepo) Delete(_ context.Context, _ string) error           { return nil }

type mockTxnRepo struct {
	committed []*transaction.Transaction
	err       error
}

func (m *mockTxnRepo) CommitSale(_ context.Context, txn *transaction.Transaction, _ []transaction.StockDecrement) error {
	if m.err != nil {
		return m.err
	}
	m.committed = append(m.committed, txn)
	return nil
}

func (m *mockTxnRepo) List(_ context.Context) ([]transaction.Transaction, error) {
	out := make([]transaction.Transaction, len(m.committed))
	for i, t := range m.committed {
		out[i] = *t
	}
	return out, nil
}

// --- Response types, defined locally to keep the tests black-box ---

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type sessionBody struct {
	ID        string `json:"id"`
	CashierID string `json:"cashier_id"`
}

type cartBody struct {
	SessionID string `json:"session_id"`
	Lines     []struct {
		Product struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Price string `json:"price"`
		} `json:"product"`
		Quantity int `json:"quantity"`
	} `json:"lines"`
	ItemCount int `json:"item_count"`
	Totals    struct {
		Subtotal string `json:"subtotal"`
		Tax      string `json:"tax"`
		Total    string `json:"total"`
	} `json:"totals"`
}

type transactionBody struct {
	ID            string `json:"id"`
	Subtotal      string `json:"subtotal"`
	Tax           string `json:"tax"`
	Total         string `json:"total"`
	PaymentMethod string `json:"payment_method"`
	CashierID     string `json:"cashier_id"`
	CustomerPaid  string `json:"customer_paid"`
	Change        string `json:"change"`
	Items         []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

// --- Test fixture ---

type fixture struct {
	mux      *http.ServeMux
	products *mockProductRepo
	txns     *mockTxnRepo
	sessions *session.Registry
}

func newFixture(products ...product.Product) *fixture {
	repo := &mockProductRepo{
		byID:      make(map[string]*product.Product),
		byBarcode: make(map[string]*product.Product),
	}
	for i := range products {
		repo.byID[products[i].ID] = &products[i]
		repo.byBarcode[products[i].Barcode] = &products[i]
	}

	txns := &mockTxnRepo{}
	sessions := session.NewRegistry(txns, time.Hour)
	h := NewHandler(repo, lookup.New(repo), sessions, txns, Metrics{})

	mux := http.NewServeMux()
	h.Routes(mux)

	return &fixture{mux: mux, products: repo, txns: txns, sessions: sessions}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func decodeInto[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/sessions", `{"cashier_id":"cashier-1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	return decodeInto[sessionBody](t, w).ID
}

func grocery(id, name, price, barcode string) product.Product {
	return product.Product{
		ID:      id,
		Name:    name,
		Price:   decimal.RequireFromString(price),
		Barcode: barcode,
		Stock:   10,
		Active:  true,
	}
}

// --- Tests ---

func TestCreateSession(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/api/sessions", `{"cashier_id":"cashier-7"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeInto[sessionBody](t, w)
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, "cashier-7", body.CashierID)
}

func TestCreateSession_MissingCashier(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodPost, "/api/sessions", `{}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeInto[errorBody](t, w).Message, "cashier_id")
}

func TestAddItem_ByProductID(t *testing.T) {
	f := newFixture(grocery("p1", "Bananas", "2.99", "1234567890123"))
	id := f.newSession(t)

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":2}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeInto[cartBody](t, w)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, "p1", body.Lines[0].Product.ID)
	assert.Equal(t, 2, body.Lines[0].Quantity)
	assert.Equal(t, 2, body.ItemCount)
}

func TestAddItem_ByBarcode_DefaultQuantity(t *testing.T) {
	f := newFixture(grocery("p1", "Bananas", "2.99", "1234567890123"))
	id := f.newSession(t)

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"barcode":"1234567890123"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeInto[cartBody](t, w)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, 1, body.Lines[0].Quantity, "a scan adds exactly one unit")
}

func TestAddItem_UnknownBarcode(t *testing.T) {
	f := newFixture()
	id := f.newSession(t)

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"barcode":"0000000000000"}`)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	f := newFixture(grocery("p1", "Bananas", "2.99", "1234567890123"))
	id := f.newSession(t)

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":0}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddItem_MergesExistingLine(t *testing.T) {
	f := newFixture(grocery("p1", "Bananas", "2.99", "1234567890123"))
	id := f.newSession(t)

	f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":2}`)
	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":3}`)

	body := decodeInto[cartBody](t, w)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, 5, body.Lines[0].Quantity)
}

func TestSetQuantity_ZeroRemovesLine(t *testing.T) {
	f := newFixture(grocery("p1", "Bananas", "2.99", "1234567890123"))
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":2}`)

	w := f.do(t, http.MethodPut, "/api/sessions/"+id+"/items/p1", `{"quantity":0}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeInto[cartBody](t, w).Lines)
}

func TestGetCart_Totals(t *testing.T) {
	f := newFixture(grocery("p1", "Widget", "10.00", "1234567890123"))
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":1}`)

	w := f.do(t, http.MethodGet, "/api/sessions/"+id, "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeInto[cartBody](t, w)
	assert.Equal(t, "10.00", body.Totals.Subtotal)
	assert.Equal(t, "0.80", body.Totals.Tax)
	assert.Equal(t, "10.80", body.Totals.Total)
}

func TestGetCart_UnknownSession(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodGet, "/api/sessions/nope", "")

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckout_Cash(t *testing.T) {
	f := newFixture(grocery("p1", "Widget", "10.00", "1234567890123"))
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":1}`)

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"payment_method":"cash","tendered":"12.50"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeInto[transactionBody](t, w)
	assert.Equal(t, "10.80", body.Total)
	assert.Equal(t, "12.50", body.CustomerPaid)
	assert.Equal(t, "1.70", body.Change)
	assert.Equal(t, "cashier-1", body.CashierID)
	require.Len(t, body.Items, 1)

	// Cart is cleared after a committed checkout.
	cartAfter := decodeInto[cartBody](t, f.do(t, http.MethodGet, "/api/sessions/"+id, ""))
	assert.Empty(t, cartAfter.Lines)

	require.Len(t, f.txns.committed, 1)
}

func TestCheckout_InsufficientCash(t *testing.T) {
	f := newFixture(grocery("p1", "Widget", "10.00", "1234567890123"))
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":1}`)

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"payment_method":"cash","tendered":"10.00"}`)

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Empty(t, f.txns.committed)

	// Cart must remain intact for the retry.
	cartAfter := decodeInto[cartBody](t, f.do(t, http.MethodGet, "/api/sessions/"+id, ""))
	require.Len(t, cartAfter.Lines, 1)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture()
	id := f.newSession(t)

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"payment_method":"card"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout_StockExhausted(t *testing.T) {
	f := newFixture(grocery("p1", "Widget", "10.00", "1234567890123"))
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":1}`)
	f.txns.err = errors.Wrap(transaction.ErrInsufficientStock, "product p1")

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"payment_method":"card"}`)

	require.Equal(t, http.StatusConflict, w.Code)

	cartAfter := decodeInto[cartBody](t, f.do(t, http.MethodGet, "/api/sessions/"+id, ""))
	require.Len(t, cartAfter.Lines, 1, "cart must survive a rejected commit")
}

func TestCheckout_PersistenceDown(t *testing.T) {
	f := newFixture(grocery("p1", "Widget", "10.00", "1234567890123"))
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":1}`)
	f.txns.err = errors.New("connection refused")

	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"payment_method":"card"}`)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, f.txns.committed)
}

func TestFindByBarcode(t *testing.T) {
	f := newFixture(grocery("p1", "Bananas", "2.99", "1234567890123"))

	w := f.do(t, http.MethodGet, "/api/products/barcode/1234567890123", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "p1", body.ID)
	assert.Equal(t, "2.99", body.Price)
}

func TestFindByBarcode_NotFound(t *testing.T) {
	f := newFixture()

	w := f.do(t, http.MethodGet, "/api/products/barcode/0000000000000", "")

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTransactions(t *testing.T) {
	f := newFixture(grocery("p1", "Widget", "10.00", "1234567890123"))
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":1}`)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout", `{"payment_method":"card"}`)

	w := f.do(t, http.MethodGet, "/api/transactions", "")

	require.Equal(t, http.StatusOK, w.Code)
	var txns []transactionBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txns))
	require.Len(t, txns, 1)
	assert.Equal(t, "card", txns[0].PaymentMethod)
}

func TestCloseSession(t *testing.T) {
	f := newFixture()
	id := f.newSession(t)

	w := f.do(t, http.MethodDelete, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckout_RetrySameTransactionID(t *testing.T) {
	f := newFixture(grocery("p1", "Widget", "10.00", "1234567890123"))
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/items", `{"product_id":"p1","quantity":1}`)

	body := fmt.Sprintf(`{"payment_method":"card","transaction_id":%q}`, "txn-42")

	// First attempt fails at the store.
	f.txns.err = errors.New("connection refused")
	w := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout", body)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Retry with the same id succeeds and reuses it.
	f.txns.err = nil
	w = f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout", body)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "txn-42", decodeInto[transactionBody](t, w).ID)
}
