package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/interbox/payments-backend/internal/charges"
	"github.com/interbox/payments-backend/internal/cron"
	"github.com/interbox/payments-backend/internal/ledger"
	"github.com/interbox/payments-backend/internal/reconcile"
	"github.com/interbox/payments-backend/internal/splits"
	"github.com/interbox/payments-backend/pkg/config"
	"github.com/interbox/payments-backend/pkg/db"
	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/metrics"
	"github.com/interbox/payments-backend/pkg/migrate"
	"github.com/interbox/payments-backend/pkg/openpix"
	"github.com/interbox/payments-backend/pkg/redis"
	"github.com/interbox/payments-backend/pkg/storage"
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

	store, err := storage.New(cfg.Ledger)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap ledger storage", err)
		os.Exit(1)
	}

	gateway, err := openpix.NewClient(context.Background(), cfg.OpenPix, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pix gateway client", err)
		os.Exit(1)
	}

	pm := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)

	ledgerSvc, err := ledger.NewService(store, cfg.Ledger.OrderFile, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	splitTable, err := splits.ParseTable(cfg.Split.TableJSON)
	if err != nil {
		logg.Error(context.Background(), "failed to parse split table", err)
		os.Exit(1)
	}
	splitSvc, err := splits.NewService(splitTable, splits.NewRepository(dbClient.DB()), gateway, store, cfg.Ledger.SplitFile, logg, pm)
	if err != nil {
		logg.Error(context.Background(), "failed to create split service", err)
		os.Exit(1)
	}

	chargesRepo := charges.NewRepository(dbClient.DB())
	guard := reconcile.NewGuard(redisClient, logg)
	reconcileSvc, err := reconcile.NewService(chargesRepo, ledgerSvc, splitSvc, guard, nil, logg, pm)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewChargeExpiryJob(cron.ChargeExpiryJobParams{
		Logger:    logg,
		Reader:    chargesRepo,
		Reconcile: reconcileSvc,
		ChargeTTL: cfg.OpenPix.ChargeTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create charge expiry job", err)
		os.Exit(1)
	}
	repairJob, err := cron.NewLedgerRepairJob(cron.LedgerRepairJobParams{
		Logger: logg,
		Reader: chargesRepo,
		Ledger: ledgerSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger repair job", err)
		os.Exit(1)
	}
	backfillJob, err := cron.NewGatewayBackfillJob(cron.GatewayBackfillJobParams{
		Logger:    logg,
		Gateway:   gateway,
		Reconcile: reconcileSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway backfill job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, repairJob, backfillJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}
