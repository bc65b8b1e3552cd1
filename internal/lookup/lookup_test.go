package lookup

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalder/pos-engine/internal/domain/product"
)

// --- Mock implementations ---

type mockCatalog struct {
	byBarcode map[string]*product.Product
	queries   int
	getErr    error
}

func (m *mockCatalog) ListActive(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockCatalog) GetByID(_ context.Context, _ string) (*product.Product, error) {
	return nil, product.ErrNotFound
}

func (m *mockCatalog) GetByBarcode(_ context.Context, barcode string) (*product.Product, error) {
	m.queries++
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byBarcode[barcode]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockCatalog) ListBarcodes(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(m.byBarcode))
	for b := range m.byBarcode {
		out = append(out, b)
	}
	return out, nil
}

func (m *mockCatalog) Create(_ context.Context, _ *product.Product) error { return nil }
func (m *mockCatalog) Update(_ context.Context, _ *product.Product) error { return nil }
func (m *mockCatalog) Delete(_ context.Context, _ string) error           { return nil }

type mockCache struct {
	entries map[string]*product.Product
	getErr  error
	setErr  error
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*product.Product)}
}

func (m *mockCache) Get(_ context.Context, barcode string) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.entries[barcode]
	if !ok {
		return nil, ErrCacheMiss
	}
	return p, nil
}

func (m *mockCache) Set(_ context.Context, barcode string, p *product.Product) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[barcode] = p
	return nil
}

func (m *mockCache) Delete(_ context.Context, barcode string) error {
	delete(m.entries, barcode)
	return nil
}

// --- Helpers ---

func newCatalog(products ...product.Product) *mockCatalog {
	byBarcode := make(map[string]*product.Product, len(products))
	for i := range products {
		byBarcode[products[i].Barcode] = &products[i]
	}
	return &mockCatalog{byBarcode: byBarcode}
}

func testProduct(id, barcode string) product.Product {
	return product.Product{
		ID:      id,
		Name:    "Widget",
		Price:   decimal.RequireFromString("2.99"),
		Barcode: barcode,
		Stock:   10,
		Active:  true,
	}
}

// --- Tests ---

func TestFindByBarcode(t *testing.T) {
	catalog := newCatalog(testProduct("p1", "1234567890123"))
	svc := New(catalog)

	p, err := svc.FindByBarcode(context.Background(), "1234567890123")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
}

func TestFindByBarcode_UnknownIsNotFound(t *testing.T) {
	svc := New(newCatalog())

	_, err := svc.FindByBarcode(context.Background(), "0000000000000")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestFindByBarcode_FilterShortCircuitsUnknown(t *testing.T) {
	catalog := newCatalog(testProduct("p1", "1234567890123"))
	svc := New(catalog)
	require.NoError(t, svc.WarmFilter(context.Background()))

	_, err := svc.FindByBarcode(context.Background(), "9999999999999")
	require.ErrorIs(t, err, product.ErrNotFound)
	assert.Equal(t, 0, catalog.queries, "a filtered-out barcode must not hit the catalog")

	p, err := svc.FindByBarcode(context.Background(), "1234567890123")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
}

func TestFindByBarcode_AddBarcodeBeforeRewarm(t *testing.T) {
	catalog := newCatalog(testProduct("p1", "1234567890123"))
	svc := New(catalog)
	require.NoError(t, svc.WarmFilter(context.Background()))

	// New product appears after warmup.
	fresh := testProduct("p2", "5555555555555")
	catalog.byBarcode[fresh.Barcode] = &fresh
	svc.AddBarcode(fresh.Barcode)

	p, err := svc.FindByBarcode(context.Background(), fresh.Barcode)
	require.NoError(t, err)
	assert.Equal(t, "p2", p.ID)
}

func TestFindByBarcode_CacheHitSkipsCatalog(t *testing.T) {
	catalog := newCatalog(testProduct("p1", "1234567890123"))
	cache := newMockCache()
	svc := New(catalog, WithCache(cache))

	p1, err := svc.FindByBarcode(context.Background(), "1234567890123")
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.queries)

	p2, err := svc.FindByBarcode(context.Background(), "1234567890123")
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.queries, "second lookup must be served from cache")
	assert.Equal(t, p1.ID, p2.ID)
}

func TestFindByBarcode_CacheFailureDegradesToCatalog(t *testing.T) {
	catalog := newCatalog(testProduct("p1", "1234567890123"))
	cache := newMockCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	svc := New(catalog, WithCache(cache))

	p, err := svc.FindByBarcode(context.Background(), "1234567890123")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
}

func TestInvalidate(t *testing.T) {
	catalog := newCatalog(testProduct("p1", "1234567890123"))
	cache := newMockCache()
	svc := New(catalog, WithCache(cache))

	_, err := svc.FindByBarcode(context.Background(), "1234567890123")
	require.NoError(t, err)
	require.Contains(t, cache.entries, "1234567890123")

	svc.Invalidate(context.Background(), "1234567890123")
	assert.NotContains(t, cache.entries, "1234567890123")
}
