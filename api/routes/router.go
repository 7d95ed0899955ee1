package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/interbox/payments-backend/api/controllers"
	webhookcontrollers "github.com/interbox/payments-backend/api/controllers/webhooks"
	"github.com/interbox/payments-backend/api/middleware"
	"github.com/interbox/payments-backend/internal/charges"
	"github.com/interbox/payments-backend/internal/reconcile"
	"github.com/interbox/payments-backend/internal/splits"
	"github.com/interbox/payments-backend/pkg/config"
	"github.com/interbox/payments-backend/pkg/logger"
)

type RouterParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DBPinger   controllers.Pinger
	RedisPing  controllers.Pinger
	LedgerPing controllers.Pinger

	Charges   charges.Service
	Orders    controllers.OrderFinder
	Splits    splits.Service
	Reconcile reconcile.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DBPinger, p.RedisPing, p.LedgerPing))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/openpix", webhookcontrollers.OpenPixWebhook(p.Reconcile, cfg.OpenPix.WebhookSecret, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/charge", controllers.CreateCharge(p.Charges, logg))
		r.Get("/charge/{correlationID}", controllers.GetCharge(p.Charges, logg))
		r.Get("/status", controllers.PaymentStatus(p.Charges, logg))
		r.Post("/split", controllers.ProcessSplit(p.Splits, p.Orders, logg))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
