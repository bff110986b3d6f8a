package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/atelierworks/atelier-backend/api"
	"github.com/atelierworks/atelier-backend/internal/commissions"
	"github.com/atelierworks/atelier-backend/internal/disputes"
	"github.com/atelierworks/atelier-backend/internal/fees"
	"github.com/atelierworks/atelier-backend/internal/gateway"
	"github.com/atelierworks/atelier-backend/internal/ledger"
	"github.com/atelierworks/atelier-backend/internal/licenses"
	"github.com/atelierworks/atelier-backend/internal/orders"
	processorwebhook "github.com/atelierworks/atelier-backend/internal/webhooks/processor"
	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/db"
	"github.com/atelierworks/atelier-backend/pkg/logger"
	"github.com/atelierworks/atelier-backend/pkg/metrics"
	"github.com/atelierworks/atelier-backend/pkg/migrate"
	"github.com/atelierworks/atelier-backend/pkg/redis"
)

const webhookDedupTTL = 48 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	webhookService, err := buildWebhookService(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire escrow engine", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.HandlerParams{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Webhooks: webhookService,
			Gatherer: prometheus.DefaultGatherer,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildWebhookService wires the reconciler and the order state machine
// beneath it.
func buildWebhookService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (processorwebhook.Service, error) {
	gatewayMetrics := metrics.NewGatewayMetrics(prometheus.DefaultRegisterer)

	processor, err := gateway.NewStripeProcessor(client.New(cfg.Stripe.APIKey, nil))
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(processor, cfg.Escrow, gatewayMetrics, logg)
	if err != nil {
		return nil, err
	}
	calculator, err := fees.NewCalculator(cfg.Fees.Rate())
	if err != nil {
		return nil, err
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		return nil, err
	}
	licenseService, err := licenses.NewService(licenses.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return nil, err
	}
	commissionService, err := commissions.NewService(commissions.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return nil, err
	}

	orderService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		gw,
		ledgerService,
		calculator,
		disputes.NewRepository(dbClient.DB()),
		licenseService,
		commissionService,
		cfg.Escrow,
		logg,
	)
	if err != nil {
		return nil, err
	}

	guard, err := processorwebhook.NewIdempotencyGuard(redisClient, webhookDedupTTL, "processor")
	if err != nil {
		return nil, err
	}
	return processorwebhook.NewService(processorwebhook.NewRepository(dbClient.DB()), guard, orderService, logg)
}
