package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalder/pos-engine/internal/domain/product"
)

const (
	productColumns = `id, name, price, category, barcode, stock, description, image_url,
		supplier, cost_price, min_stock, active, created_at, updated_at`

	listActiveProductsSQL = `SELECT ` + productColumns + `
		FROM products WHERE active ORDER BY name`

	getProductByIDSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1`

	getProductByBarcodeSQL = `SELECT ` + productColumns + `
		FROM products WHERE barcode = $1`

	listBarcodesSQL = `SELECT barcode FROM products WHERE active`

	createProductSQL = `INSERT INTO products
		(id, name, price, category, barcode, stock, description, image_url, supplier, cost_price, min_stock, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	updateProductSQL = `UPDATE products SET
		name = $2, price = $3, category = $4, barcode = $5, stock = $6, description = $7,
		image_url = $8, supplier = $9, cost_price = $10, min_stock = $11, active = $12,
		updated_at = now()
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// ListActive returns all active products ordered by name.
func (r *ProductRepository) ListActive(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listActiveProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetByBarcode returns the product carrying the given barcode. The barcode is
// the catalog's unique business key; a missing match yields product.ErrNotFound.
func (r *ProductRepository) GetByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	return r.getOne(ctx, getProductByBarcodeSQL, barcode)
}

func (r *ProductRepository) getOne(ctx context.Context, sql, arg string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", arg)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", arg)
	}
	return &p, nil
}

// ListBarcodes returns the barcodes of every active product. Used to warm the
// lookup service's negative-match filter at startup.
func (r *ProductRepository) ListBarcodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listBarcodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list barcodes")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var b string
		err := row.Scan(&b)
		return b, err
	})
}

// Create persists a new catalog product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Price, p.Category, p.Barcode, p.Stock, p.Description, p.ImageURL,
		p.Supplier, p.CostPrice, p.MinStock, p.Active,
	)
	if err != nil {
		return errors.Wrapf(err, "create product %q", p.ID)
	}
	return nil
}

// Update rewrites every mutable column of the product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Price, p.Category, p.Barcode, p.Stock, p.Description, p.ImageURL,
		p.Supplier, p.CostPrice, p.MinStock, p.Active,
	)
	if err != nil {
		return errors.Wrapf(err, "update product %q", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes the product. Deleting an unknown id is not an error.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deleteProductSQL, id); err != nil {
		return errors.Wrapf(err, "delete product %q", id)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Category, &p.Barcode, &p.Stock, &p.Description, &p.ImageURL,
		&p.Supplier, &p.CostPrice, &p.MinStock, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}
