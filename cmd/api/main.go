package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/edutrack/commerce-backend/api/routes"
	"github.com/edutrack/commerce-backend/internal/cart"
	"github.com/edutrack/commerce-backend/internal/catalog"
	"github.com/edutrack/commerce-backend/internal/checkout"
	"github.com/edutrack/commerce-backend/internal/entitlements"
	"github.com/edutrack/commerce-backend/internal/inventory"
	"github.com/edutrack/commerce-backend/internal/invoices"
	"github.com/edutrack/commerce-backend/internal/orders"
	"github.com/edutrack/commerce-backend/internal/pricing"
	"github.com/edutrack/commerce-backend/internal/sequence"
	"github.com/edutrack/commerce-backend/internal/users"
	midtranswebhook "github.com/edutrack/commerce-backend/internal/webhooks/midtrans"
	"github.com/edutrack/commerce-backend/pkg/config"
	"github.com/edutrack/commerce-backend/pkg/db"
	"github.com/edutrack/commerce-backend/pkg/instance"
	"github.com/edutrack/commerce-backend/pkg/logger"
	"github.com/edutrack/commerce-backend/pkg/metrics"
	"github.com/edutrack/commerce-backend/pkg/midtrans"
	"github.com/edutrack/commerce-backend/pkg/migrate"
	"github.com/edutrack/commerce-backend/pkg/outbox"
	"github.com/edutrack/commerce-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
		"branch":      cfg.App.BranchCode,
		"instance":    instance.ID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shutting down gracefully")
	}
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, registry *prometheus.Registry) (routes.Dependencies, error) {
	conn := dbClient.DB()

	loc, err := cfg.App.Location()
	if err != nil {
		return routes.Dependencies{}, err
	}
	sequencer, err := sequence.NewSequencer(cfg.App.BranchCode, loc)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("sequencer: %w", err)
	}

	commerceMetrics := metrics.NewCommerceMetrics(registry)
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	ledger := inventory.NewLedger()
	reconciler := entitlements.NewReconciler()
	priceRepo := pricing.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)

	resolver, err := pricing.NewResolver(priceRepo)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("price resolver: %w", err)
	}
	cartService, err := cart.NewService(conn, dbClient, resolver)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("cart service: %w", err)
	}
	orderService, err := orders.NewService(orderRepo)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("orders service: %w", err)
	}

	gateway, err := midtrans.NewGateway(cfg.Midtrans)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("midtrans gateway: %w", err)
	}
	checkoutService, err := checkout.NewService(checkout.Params{
		Config:    cfg.Checkout,
		Logger:    logg,
		Tx:        dbClient,
		Orders:    orderRepo,
		Snapshots: cart.NewSnapshotLoader(conn),
		Sequencer: sequencer,
		Ledger:    ledger,
		Users:     users.NewRepository(conn),
		Gateway:   gateway,
		Outbox:    outboxService,
		Metrics:   commerceMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("checkout service: %w", err)
	}

	issuer, err := invoices.NewIssuer(sequencer)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("invoice issuer: %w", err)
	}
	processor, err := midtranswebhook.NewProcessor(midtranswebhook.ProcessorParams{
		Logger:       logg,
		Tx:           dbClient,
		Orders:       orderRepo,
		Stock:        ledger,
		Invoices:     issuer,
		Entitlements: reconciler,
		Outbox:       outboxService,
		Metrics:      commerceMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("settlement processor: %w", err)
	}
	guard, err := midtranswebhook.NewDeliveryGuard(redisClient, cfg.Eventing.WebhookDedupeTTL)
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("delivery guard: %w", err)
	}

	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Logger:       logg,
		Tx:           dbClient,
		Products:     catalog.NewRepository(conn),
		Prices:       priceRepo,
		Stock:        ledger,
		Entitlements: reconciler,
		Outbox:       outboxService,
	})
	if err != nil {
		return routes.Dependencies{}, fmt.Errorf("catalog service: %w", err)
	}

	return routes.Dependencies{
		Config:       cfg,
		Logger:       logg,
		DB:           dbClient,
		Redis:        redisClient,
		Idempotency:  redisClient,
		Gatherer:     registry,
		Checkout:     checkoutService,
		Orders:       orderService,
		Cart:         cartService,
		Catalog:      catalogService,
		Settlement:   processor,
		WebhookGuard: guard,
	}, nil
}
