// Command seed-db loads the demo catalog into PostgreSQL so a fresh install
// has something to scan. Products are matched by barcode, so re-running the
// seed refreshes the catalog instead of duplicating it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kalder/pos-engine/db"
	"github.com/kalder/pos-engine/internal/domain/product"
	"github.com/kalder/pos-engine/internal/storage/postgres"
)

type productJSON struct {
	Name        string           `json:"name"`
	Price       decimal.Decimal  `json:"price"`
	Category    string           `json:"category"`
	Barcode     string           `json:"barcode"`
	Stock       int32            `json:"stock"`
	Description string           `json:"description"`
	ImageURL    string           `json:"image_url"`
	Supplier    *string          `json:"supplier"`
	CostPrice   *decimal.Decimal `json:"cost_price"`
	MinStock    *int32           `json:"min_stock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (default: embedded demo catalog)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	repo := postgres.NewProductRepository(pool)
	slog.Info("seeding products", slog.Int("count", len(products)))

	for _, pj := range products {
		p := product.Product{
			ID:          uuid.New().String(),
			Name:        pj.Name,
			Price:       pj.Price,
			Category:    pj.Category,
			Barcode:     pj.Barcode,
			Stock:       pj.Stock,
			Description: pj.Description,
			ImageURL:    pj.ImageURL,
			Supplier:    pj.Supplier,
			CostPrice:   pj.CostPrice,
			MinStock:    pj.MinStock,
			Active:      true,
		}

		// Match on barcode so the seed is re-runnable.
		if existing, err := repo.GetByBarcode(ctx, p.Barcode); err == nil {
			p.ID = existing.ID
			if err := repo.Update(ctx, &p); err != nil {
				return errors.Wrapf(err, "update product %q", p.Barcode)
			}
			slog.Info("updated product", slog.String("barcode", p.Barcode), slog.String("name", p.Name))
			continue
		} else if !errors.Is(err, product.ErrNotFound) {
			return errors.Wrapf(err, "look up product %q", p.Barcode)
		}

		if err := repo.Create(ctx, &p); err != nil {
			return errors.Wrapf(err, "create product %q", p.Barcode)
		}
		slog.Info("created product", slog.String("barcode", p.Barcode), slog.String("name", p.Name))
	}

	return nil
}
