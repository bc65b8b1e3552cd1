package api

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/kalder/pos-engine/internal/domain/cart"
	"github.com/kalder/pos-engine/internal/domain/product"
	"github.com/kalder/pos-engine/internal/session"
)

// createSessionRequest opens a terminal session for a cashier.
type createSessionRequest struct {
	CashierID string
}

func decodeCreateSession(data []byte) (createSessionRequest, error) {
	var req createSessionRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "cashier_id":
			v, err := d.Str()
			req.CashierID = v
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

// addItemRequest adds a product to the cart, addressed by catalog id or by
// barcode. Quantity defaults to 1, matching a single scan.
type addItemRequest struct {
	ProductID string
	Barcode   string
	Quantity  int
}

func decodeAddItem(data []byte) (addItemRequest, error) {
	req := addItemRequest{Quantity: 1}
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			v, err := d.Str()
			req.ProductID = v
			return err
		case "barcode":
			v, err := d.Str()
			req.Barcode = v
			return err
		case "quantity":
			v, err := d.Int()
			req.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

func decodeQuantity(data []byte) (int, error) {
	quantity := 0
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "quantity":
			v, err := d.Int()
			quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	return quantity, err
}

// getSession resolves the {id} path value to a live session, writing the 404
// itself when the session is unknown or expired.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "session not found")
			return nil, false
		}
		zctx.From(r.Context()).Error("Session lookup failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return s, true
}

// writeCart responds with the session's current cart view. Callers must hold
// the session lock.
func writeCart(w http.ResponseWriter, r *http.Request, s *session.Session, status int) {
	totals, err := s.Cart.Totals()
	if err != nil {
		// Unreachable for lines admitted by AddItem; fail loudly if not.
		zctx.From(r.Context()).Error("Cart totals failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	lines := s.Cart.Lines()
	itemCount := s.Cart.ItemCount()
	writeJSON(w, r, status, func(e *jx.Encoder) {
		encodeCart(e, s.ID, lines, itemCount, totals)
	})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body")
		return
	}
	req, err := decodeCreateSession(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.CashierID == "" {
		writeError(w, r, http.StatusBadRequest, "cashier_id required")
		return
	}

	s := h.sessions.Create(req.CashierID)
	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
			e.Field("cashier_id", func(e *jx.Encoder) { e.Str(s.CashierID) })
		})
	})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	s.Lock()
	defer s.Unlock()
	writeCart(w, r, s, http.StatusOK)
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Delete(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body")
		return
	}
	req, err := decodeAddItem(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}

	p, err := h.resolveProduct(r, req)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "product not found")
			return
		}
		if errors.Is(err, errNoProductRef) {
			writeError(w, r, http.StatusBadRequest, "product_id or barcode required")
			return
		}
		zctx.From(r.Context()).Error("Product resolve failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}

	s.Lock()
	defer s.Unlock()

	if err := s.Cart.AddItem(*p, req.Quantity); err != nil {
		if errors.Is(err, cart.ErrInvalidQuantity) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeCart(w, r, s, http.StatusOK)
}

var errNoProductRef = errors.New("product_id or barcode required")

// resolveProduct fetches the product referenced by an addItem request, by id
// or by barcode.
func (h *Handler) resolveProduct(r *http.Request, req addItemRequest) (*product.Product, error) {
	switch {
	case req.ProductID != "":
		return h.products.GetByID(r.Context(), req.ProductID)
	case req.Barcode != "":
		return h.lookup.FindByBarcode(r.Context(), req.Barcode)
	default:
		return nil, errNoProductRef
	}
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body")
		return
	}
	quantity, err := decodeQuantity(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return
	}

	s.Lock()
	defer s.Unlock()

	// Unknown product ids are a deliberate no-op: the UI may race a removal.
	s.Cart.SetQuantity(r.PathValue("productID"), quantity)
	writeCart(w, r, s, http.StatusOK)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	s.Lock()
	defer s.Unlock()

	s.Cart.RemoveItem(r.PathValue("productID"))
	writeCart(w, r, s, http.StatusOK)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.getSession(w, r)
	if !ok {
		return
	}

	s.Lock()
	defer s.Unlock()

	s.Cart.Clear()
	writeCart(w, r, s, http.StatusOK)
}
