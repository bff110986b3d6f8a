package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/atelierworks/atelier-backend/internal/commissions"
	"github.com/atelierworks/atelier-backend/internal/cron"
	"github.com/atelierworks/atelier-backend/internal/disputes"
	"github.com/atelierworks/atelier-backend/internal/fees"
	"github.com/atelierworks/atelier-backend/internal/gateway"
	"github.com/atelierworks/atelier-backend/internal/ledger"
	"github.com/atelierworks/atelier-backend/internal/licenses"
	"github.com/atelierworks/atelier-backend/internal/orders"
	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/db"
	"github.com/atelierworks/atelier-backend/pkg/logger"
	"github.com/atelierworks/atelier-backend/pkg/metrics"
	"github.com/atelierworks/atelier-backend/pkg/migrate"
	"github.com/atelierworks/atelier-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	service, err := buildCronService(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire cron worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildCronService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
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

	orderRepo := orders.NewRepository(dbClient.DB())
	disputeRepo := disputes.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(
		orderRepo,
		gw,
		ledgerService,
		calculator,
		disputeRepo,
		licenseService,
		commissionService,
		cfg.Escrow,
		logg,
	)
	if err != nil {
		return nil, err
	}

	autoAccept, err := cron.NewAutoAcceptJob(cron.AutoAcceptJobParams{
		Logger:      logg,
		Reader:      orderRepo,
		Orders:      orderService,
		Disputes:    disputeRepo,
		AcceptAfter: cfg.Escrow.AutoAcceptAfter,
	})
	if err != nil {
		return nil, err
	}
	paymentExpiry, err := cron.NewPaymentExpiryJob(cron.PaymentExpiryJobParams{
		Logger:    logg,
		Reader:    orderRepo,
		Orders:    orderService,
		ExpireTTL: cfg.Escrow.PendingPaymentTTL,
	})
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(autoAccept, paymentExpiry),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}
