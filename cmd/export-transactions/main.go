// Command export-transactions dumps the transaction history as gzipped JSON
// lines, one committed sale per line, for bookkeeping or import elsewhere.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/kalder/pos-engine/internal/domain/transaction"
	"github.com/kalder/pos-engine/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		outputPath  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outputPath, "output", "transactions.jsonl.gz", "output file path, - for stdout")
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

	if err := run(ctx, databaseURL, outputPath); err != nil {
		slog.Error("export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL, outputPath string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	out := os.Stdout
	if outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			return errors.Wrap(err, "create output file")
		}
		defer f.Close()
		out = f
	}

	buf := bufio.NewWriterSize(out, 1<<20)
	gz := pgzip.NewWriter(buf)

	repo := postgres.NewTransactionRepository(pool, false)

	// Fetch and encode run as separate pipeline stages so a slow disk does
	// not hold the database connection open longer than needed.
	txns := make(chan transaction.Transaction, 64)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(txns)
		list, err := repo.List(ctx)
		if err != nil {
			return errors.Wrap(err, "list transactions")
		}
		for _, t := range list {
			select {
			case txns <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var count int
	g.Go(func() error {
		var e jx.Encoder
		for t := range txns {
			e.Reset()
			encodeTransaction(&e, t)
			if _, err := gz.Write(append(e.Bytes(), '\n')); err != nil {
				return errors.Wrap(err, "write record")
			}
			count++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip stream")
	}
	if err := buf.Flush(); err != nil {
		return errors.Wrap(err, "flush output")
	}

	slog.Info("export completed", slog.Int("transactions", count), slog.String("output", outputPath))
	return nil
}

func encodeTransaction(e *jx.Encoder, t transaction.Transaction) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(t.ID) })
		e.Field("ts", func(e *jx.Encoder) { e.Str(t.Timestamp.Format(time.RFC3339)) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(t.Subtotal.StringFixed(2)) })
		e.Field("tax", func(e *jx.Encoder) { e.Str(t.Tax.StringFixed(2)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(t.Total.StringFixed(2)) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(t.PaymentMethod)) })
		e.Field("cashier_id", func(e *jx.Encoder) { e.Str(t.CashierID) })
		e.Field("customer_paid", func(e *jx.Encoder) { e.Str(t.CustomerPaid.StringFixed(2)) })
		e.Field("change", func(e *jx.Encoder) { e.Str(t.Change.StringFixed(2)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range t.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(item.Name) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Str(item.UnitPrice.StringFixed(2)) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
					})
				}
			})
		})
	})
}
