// Package lookup resolves scanned or typed barcodes to catalog products.
// Decoded scanner input and manual entry are treated identically: both arrive
// here as a plain string.
//
// Lookups are layered: an in-process bloom filter short-circuits barcodes the
// catalog has never seen, a Redis cache absorbs repeat scans, and PostgreSQL
// is the source of truth. Filter and cache are optional; a nil value disables
// the layer.
package lookup

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/kalder/pos-engine/internal/domain/product"
)

// ErrCacheMiss is returned by a Cache when the barcode is not cached.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a read-through cache of barcode lookups.
type Cache interface {
	Get(ctx context.Context, barcode string) (*product.Product, error)
	Set(ctx context.Context, barcode string, p *product.Product) error
	Delete(ctx context.Context, barcode string) error
}

// filterFPRate is the bloom filter's target false-positive rate. False
// positives only cost one extra catalog query; false negatives are impossible
// for barcodes present at warmup or added via AddBarcode.
const filterFPRate = 0.001

// minFilterCapacity keeps the filter useful for near-empty catalogs.
const minFilterCapacity = 1024

// Service answers FindByBarcode for the POS surface.
type Service struct {
	catalog product.Repository
	cache   Cache

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// Option configures a Service.
type Option func(*Service)

// WithCache attaches a read-through cache.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// New creates a lookup Service over the given catalog. Call WarmFilter to
// enable the negative-match filter.
func New(catalog product.Repository, opts ...Option) *Service {
	s := &Service{catalog: catalog}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WarmFilter rebuilds the bloom filter from the catalog's current barcodes.
// Safe to call periodically; readers see either the old or the new filter.
func (s *Service) WarmFilter(ctx context.Context) error {
	barcodes, err := s.catalog.ListBarcodes(ctx)
	if err != nil {
		return errors.Wrap(err, "list barcodes")
	}

	capacity := uint(len(barcodes) * 2)
	if capacity < minFilterCapacity {
		capacity = minFilterCapacity
	}
	f := bloom.NewWithEstimates(capacity, filterFPRate)
	for _, b := range barcodes {
		f.AddString(b)
	}

	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()

	zctx.From(ctx).Info("Barcode filter warmed", zap.Int("barcodes", len(barcodes)))
	return nil
}

// AddBarcode registers a newly created product's barcode with the filter so
// it resolves before the next rewarm.
func (s *Service) AddBarcode(barcode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter != nil {
		s.filter.AddString(barcode)
	}
}

// knownBarcode reports whether the barcode can possibly exist. Without a
// warmed filter every barcode is possible.
func (s *Service) knownBarcode(barcode string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter == nil || s.filter.TestString(barcode)
}

// FindByBarcode resolves a barcode to its product. An unknown barcode yields
// product.ErrNotFound — a normal negative result the caller surfaces, never a
// fault. Cache failures degrade to a direct catalog read.
func (s *Service) FindByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	if !s.knownBarcode(barcode) {
		return nil, product.ErrNotFound
	}

	if s.cache != nil {
		p, err := s.cache.Get(ctx, barcode)
		switch {
		case err == nil:
			return p, nil
		case errors.Is(err, ErrCacheMiss):
		default:
			zctx.From(ctx).Warn("Barcode cache read failed", zap.String("barcode", barcode), zap.Error(err))
		}
	}

	p, err := s.catalog.GetByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, barcode, p); err != nil {
			zctx.From(ctx).Warn("Barcode cache write failed", zap.String("barcode", barcode), zap.Error(err))
		}
	}
	return p, nil
}

// Invalidate drops the cached entry for a barcode. Called when the catalog
// mutates a product so stale prices don't reach the cart.
func (s *Service) Invalidate(ctx context.Context, barcode string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, barcode); err != nil {
		zctx.From(ctx).Warn("Barcode cache invalidation failed", zap.String("barcode", barcode), zap.Error(err))
	}
}
