package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/interbox/payments-backend/internal/reconcile"
	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/openpix"
)

type chargeLister interface {
	ListCharges(ctx context.Context, sinceDays int) ([]openpix.Charge, error)
}

type chargeCompleter interface {
	Complete(ctx context.Context, correlationID string, gatewayCharge *openpix.Charge) (*reconcile.Outcome, error)
}

// GatewayBackfillJobParams configure the missed-settlement sweep.
type GatewayBackfillJobParams struct {
	Logger    *logger.Logger
	Gateway   chargeLister
	Reconcile chargeCompleter
	SinceDays int
}

// NewGatewayBackfillJob builds the job that pulls recently settled charges
// straight from the gateway and funnels them through the completion path.
// Catches payments whose webhook deliveries were all lost. Completion is
// conditional, so charges already reconciled come back as duplicates.
func NewGatewayBackfillJob(params GatewayBackfillJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if params.Reconcile == nil {
		return nil, fmt.Errorf("reconcile service required")
	}
	sinceDays := params.SinceDays
	if sinceDays <= 0 {
		sinceDays = 2
	}
	return &gatewayBackfillJob{
		logg:      params.Logger,
		gateway:   params.Gateway,
		reconcile: params.Reconcile,
		sinceDays: sinceDays,
	}, nil
}

type gatewayBackfillJob struct {
	logg      *logger.Logger
	gateway   chargeLister
	reconcile chargeCompleter
	sinceDays int
}

func (j *gatewayBackfillJob) Name() string { return "gateway-backfill" }

func (j *gatewayBackfillJob) Run(ctx context.Context) error {
	listed, err := j.gateway.ListCharges(ctx, j.sinceDays)
	if err != nil {
		return fmt.Errorf("listing gateway charges: %w", err)
	}

	var errs []error
	completed := 0
	start := time.Now()
	for i := range listed {
		charge := listed[i]
		if !charge.Paid() || charge.CorrelationID == "" {
			continue
		}
		outcome, err := j.reconcile.Complete(ctx, charge.CorrelationID, &charge)
		if err != nil {
			errs = append(errs, fmt.Errorf("backfill %s: %w", charge.CorrelationID, err))
			continue
		}
		if outcome.Completed {
			completed++
		}
	}

	if completed > 0 {
		j.logg.Info(ctx, fmt.Sprintf("backfilled %d settled charges in %s", completed, time.Since(start).Round(time.Millisecond)))
	}
	return multierr.Combine(errs...)
}
