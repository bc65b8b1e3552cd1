// Package app wires the POS server together: configuration, storage, the
// barcode lookup layer, register sessions, health probes, and the HTTP
// surface with its middleware chain.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kalder/pos-engine/internal/api"
	"github.com/kalder/pos-engine/internal/lookup"
	"github.com/kalder/pos-engine/internal/session"
	"github.com/kalder/pos-engine/internal/storage/postgres"
	"github.com/kalder/pos-engine/pkg/health"
	"github.com/kalder/pos-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	txnRepo := postgres.NewTransactionRepository(pool, cfg.AllowOversell)
	if cfg.AllowOversell {
		lg.Warn("Oversell enabled: sales may drive stock negative")
	}

	// Health probes.
	healthSvc := health.NewService()
	healthSvc.Register(health.Probe{
		Name: "postgres", Kind: health.Readiness,
		Timeout: 5 * time.Second,
		Check:   health.PingCheck(pool),
	})
	healthSvc.Register(health.Probe{
		Name: "goroutines", Kind: health.Liveness,
		Timeout: time.Second,
		Check:   health.GoroutineCountCheck(10000),
	})

	// Barcode lookup: optional Redis cache in front of the catalog.
	var lookupOpts []lookup.Option
	if cfg.RedisAddr != "" {
		rdb, err := newRedisClient(cfg.RedisAddr)
		if err != nil {
			return errors.Wrap(err, "redis client")
		}
		defer func() { _ = rdb.Close() }()

		lookupOpts = append(lookupOpts, lookup.WithCache(lookup.NewRedisCache(rdb)))
		healthSvc.Register(health.Probe{
			Name: "redis", Kind: health.Readiness,
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		})
		lg.Info("Barcode cache enabled", zap.String("redis", cfg.RedisAddr))
	}

	lookupSvc := lookup.New(productRepo, lookupOpts...)
	if err := lookupSvc.WarmFilter(ctx); err != nil {
		return errors.Wrap(err, "warm barcode filter")
	}
	go rewarmFilter(ctx, lookupSvc, cfg.Lookup.RewarmInterval)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Register sessions.
	sessions := session.NewRegistry(txnRepo, cfg.Session.TTL)
	sessions.StartJanitor(ctx, cfg.Session.SweepInterval)

	// Metrics.
	meter := m.MeterProvider().Meter("pos-engine")
	checkouts, err := meter.Int64Counter("pos.checkouts")
	if err != nil {
		return errors.Wrap(err, "create checkout counter")
	}

	// HTTP surface.
	h := api.NewHandler(productRepo, lookupSvc, sessions, txnRepo, api.Metrics{
		Checkouts: checkouts,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(mux)

	handler := httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: cfg.CORS.Origins,
			MaxAge:       86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.RequestID(),
		httpmiddleware.LogRequests(),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(handler, "pos-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: flag not-ready, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRedisClient accepts either a bare host:port or a redis:// URL.
func newRedisClient(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis URL")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

// rewarmFilter periodically rebuilds the barcode filter so products created
// outside this process become scannable without a restart.
func rewarmFilter(ctx context.Context, svc *lookup.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.WarmFilter(ctx); err != nil {
				zctx.From(ctx).Warn("Barcode filter rewarm failed", zap.Error(err))
			}
		}
	}
}
