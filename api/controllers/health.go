package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/interbox/payments-backend/api/responses"
	"github.com/interbox/payments-backend/pkg/config"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger is any dependency that can answer a health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Interbox-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP, ledgerP Pinger) http.HandlerFunc {
	type probe struct {
		name   string
		pinger Pinger
	}
	probes := []probe{
		{name: "db", pinger: dbP},
		{name: "redis", pinger: redisP},
		{name: "ledger", pinger: ledgerP},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		w.Header().Set("X-Interbox-Env", cfg.App.Env)

		checks := map[string]string{}
		for _, p := range probes {
			if p.pinger == nil {
				checks[p.name] = "skipped"
				continue
			}
			if err := p.pinger.Ping(ctx); err != nil {
				checks[p.name] = "down"
				responses.WriteError(ctx, logg,
					w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, p.name+" unreachable").WithDetails(checks))
				return
			}
			checks[p.name] = "up"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
