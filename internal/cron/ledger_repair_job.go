package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
	"github.com/interbox/payments-backend/pkg/logger"
)

const repairBatchSize = 500

type paidOrderReader interface {
	ListPaidOrdersSince(ctx context.Context, since time.Time, limit int) ([]models.Order, error)
}

type orderLedger interface {
	LatestStatus(ctx context.Context, correlationID string) (enums.OrderStatus, bool, error)
	AppendOrder(ctx context.Context, order *models.Order) error
}

// LedgerRepairJobParams configure the ledger drift repair.
type LedgerRepairJobParams struct {
	Logger   *logger.Logger
	Reader   paidOrderReader
	Ledger   orderLedger
	Lookback time.Duration
}

// NewLedgerRepairJob builds the job that re-appends paid orders the ledger
// missed. Appends deferred by an outage on the hot path land here.
func NewLedgerRepairJob(params LedgerRepairJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = 48 * time.Hour
	}
	return &ledgerRepairJob{
		logg:     params.Logger,
		reader:   params.Reader,
		ledger:   params.Ledger,
		lookback: lookback,
		now:      time.Now,
	}, nil
}

type ledgerRepairJob struct {
	logg     *logger.Logger
	reader   paidOrderReader
	ledger   orderLedger
	lookback time.Duration
	now      func() time.Time
}

func (j *ledgerRepairJob) Name() string { return "ledger-repair" }

func (j *ledgerRepairJob) Run(ctx context.Context) error {
	since := j.now().UTC().Add(-j.lookback)
	paid, err := j.reader.ListPaidOrdersSince(ctx, since, repairBatchSize)
	if err != nil {
		return fmt.Errorf("listing paid orders: %w", err)
	}

	var errs []error
	repaired := 0
	for i := range paid {
		order := &paid[i]
		status, ok, err := j.ledger.LatestStatus(ctx, order.CorrelationID)
		if err != nil {
			errs = append(errs, fmt.Errorf("ledger lookup %s: %w", order.CorrelationID, err))
			continue
		}
		if ok && status == enums.OrderStatusPaid {
			continue
		}
		if err := j.ledger.AppendOrder(ctx, order); err != nil {
			errs = append(errs, fmt.Errorf("ledger append %s: %w", order.CorrelationID, err))
			continue
		}
		repaired++
	}

	if repaired > 0 {
		j.logg.Info(ctx, fmt.Sprintf("repaired %d missing ledger entries", repaired))
	}
	return multierr.Combine(errs...)
}
