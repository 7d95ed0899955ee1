package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/logger"
)

const expiryBatchSize = 200

type staleChargeReader interface {
	ListActiveChargesOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Charge, error)
}

type chargeExpirer interface {
	Expire(ctx context.Context, correlationID string) error
}

// ChargeExpiryJobParams configure the stale charge sweeper.
type ChargeExpiryJobParams struct {
	Logger    *logger.Logger
	Reader    staleChargeReader
	Reconcile chargeExpirer
	ChargeTTL time.Duration
}

// NewChargeExpiryJob builds the job that closes charges the gateway never
// settled. Expiry flows through reconcile, so a charge that got paid between
// the listing and the sweep keeps its paid order.
func NewChargeExpiryJob(params ChargeExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("charge reader required")
	}
	if params.Reconcile == nil {
		return nil, fmt.Errorf("reconcile service required")
	}
	ttl := params.ChargeTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &chargeExpiryJob{
		logg:      params.Logger,
		reader:    params.Reader,
		reconcile: params.Reconcile,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

type chargeExpiryJob struct {
	logg      *logger.Logger
	reader    staleChargeReader
	reconcile chargeExpirer
	ttl       time.Duration
	now       func() time.Time
}

func (j *chargeExpiryJob) Name() string { return "charge-expiry" }

func (j *chargeExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.reader.ListActiveChargesOlderThan(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("listing stale charges: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	j.logg.Info(ctx, fmt.Sprintf("expiring %d stale charges", len(stale)))
	var errs []error
	for _, charge := range stale {
		if err := j.reconcile.Expire(ctx, charge.CorrelationID); err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", charge.CorrelationID, err))
		}
	}
	return multierr.Combine(errs...)
}
