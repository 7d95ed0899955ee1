package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/interbox/payments-backend/api/routes"
	"github.com/interbox/payments-backend/internal/charges"
	"github.com/interbox/payments-backend/internal/ledger"
	"github.com/interbox/payments-backend/internal/notifications"
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
	chargesSvc, err := charges.NewService(chargesRepo, dbClient, gateway, ledgerSvc, logg, pm, cfg.OpenPix.ChargeTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create charges service", err)
		os.Exit(1)
	}

	notifier, err := notifications.NewService(cfg.Sendgrid, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	guard := reconcile.NewGuard(redisClient, logg)
	reconcileSvc, err := reconcile.NewService(chargesRepo, ledgerSvc, splitSvc, guard, notifier, logg, pm)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	var ledgerPinger storage.Pinger
	if p, ok := store.(storage.Pinger); ok {
		ledgerPinger = p
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
		Handler: routes.NewRouter(routes.RouterParams{
			Config:     cfg,
			Logger:     logg,
			DBPinger:   dbClient,
			RedisPing:  redisClient,
			LedgerPing: ledgerPinger,
			Charges:    chargesSvc,
			Orders:     chargesRepo,
			Splits:     splitSvc,
			Reconcile:  reconcileSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
