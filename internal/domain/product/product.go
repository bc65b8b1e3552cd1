package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist. A missing
// barcode match is a normal negative result, not a fault; callers should test
// for it with errors.Is.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item. The catalog owns products; the checkout
// engine only reads them and issues stock decrements at commit time. A local
// Product value is a snapshot and is never authoritative for stock.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Category    string
	Barcode     string
	Stock       int32
	Description string
	ImageURL    string

	// Optional attributes; nil means the value was never provided.
	Supplier  *string
	CostPrice *decimal.Decimal
	MinStock  *int32

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LowStock reports whether the product is at or below its minimum stock
// threshold. Products without a threshold are never low.
func (p *Product) LowStock() bool {
	return p.MinStock != nil && p.Stock <= *p.MinStock
}

// Repository defines catalog persistence. Create/Update/Delete serve the
// management surface and seeding; the checkout engine itself only reads.
type Repository interface {
	ListActive(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByBarcode(ctx context.Context, barcode string) (*Product, error)
	ListBarcodes(ctx context.Context) ([]string, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
