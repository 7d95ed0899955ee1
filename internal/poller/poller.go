package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/interbox/payments-backend/internal/reconcile"
	"github.com/interbox/payments-backend/pkg/config"
	"github.com/interbox/payments-backend/pkg/db/models"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/openpix"
)

// ChargeReader is the gateway surface the poller needs.
type ChargeReader interface {
	GetCharge(ctx context.Context, correlationID string) (*openpix.Charge, error)
}

// PendingLister feeds the sweep loop with orders still waiting on payment.
type PendingLister interface {
	ListPendingOrdersCreatedSince(ctx context.Context, since time.Time, limit int) ([]models.Order, error)
}

// Result is why a watch ended.
type Result string

const (
	ResultCompleted Result = "completed"
	ResultExpired   Result = "expired"
	ResultTimeout   Result = "timeout"
	ResultCancelled Result = "cancelled"
)

// Poller watches open charges as a webhook fallback: when the callback never
// arrives, polling still drives the charge through the same completion path.
type Poller struct {
	gateway   ChargeReader
	reconcile reconcile.Service
	lister    PendingLister
	logg      *logger.Logger
	cfg       config.PollerConfig

	mu       sync.Mutex
	watching map[string]struct{}
}

// New wires a poller.
func New(gateway ChargeReader, reconcileSvc reconcile.Service, lister PendingLister, logg *logger.Logger, cfg config.PollerConfig) (*Poller, error) {
	if gateway == nil {
		return nil, fmt.Errorf("poller gateway required")
	}
	if reconcileSvc == nil {
		return nil, fmt.Errorf("poller reconcile service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("poller logger required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Poller{
		gateway:   gateway,
		reconcile: reconcileSvc,
		lister:    lister,
		logg:      logg,
		cfg:       cfg,
		watching:  map[string]struct{}{},
	}, nil
}

// Watch polls one charge until it settles, expires, or the watch window
// closes. Gateway blips and not-yet-indexed charges read as "still unknown"
// and the loop keeps going.
func (p *Poller) Watch(ctx context.Context, correlationID string) (Result, error) {
	if correlationID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "correlation id is required")
	}
	if !p.claim(correlationID) {
		p.logg.Info(p.logg.WithCorrelationID(ctx, correlationID), "charge already being watched")
		return ResultCancelled, nil
	}
	defer p.release(correlationID)

	ctx = p.logg.WithCorrelationID(ctx, correlationID)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logg.Info(ctx, "watching charge")
	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				p.logg.Info(ctx, "watch window closed, charge still open")
				return ResultTimeout, nil
			}
			return ResultCancelled, nil
		case <-ticker.C:
			done, result, err := p.pollOnce(ctx, correlationID)
			if err != nil {
				return "", err
			}
			if done {
				return result, nil
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, correlationID string) (bool, Result, error) {
	charge, err := p.gateway.GetCharge(ctx, correlationID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			// The gateway may lag behind its own create call.
			return false, "", nil
		}
		p.logg.Warn(ctx, "poll attempt failed, will retry")
		return false, "", nil
	}

	switch charge.Status {
	case "COMPLETED":
		if _, err := p.reconcile.Complete(ctx, correlationID, charge); err != nil {
			p.logg.Error(ctx, "completing polled charge", err)
			return false, "", nil
		}
		return true, ResultCompleted, nil
	case "EXPIRED":
		if err := p.reconcile.Expire(ctx, correlationID); err != nil {
			p.logg.Error(ctx, "expiring polled charge", err)
			return false, "", nil
		}
		return true, ResultExpired, nil
	default:
		return false, "", nil
	}
}

// Run sweeps recent pending orders and spawns a watch per uncovered charge.
// This is the worker entrypoint; it blocks until the context ends.
func (p *Poller) Run(ctx context.Context) error {
	if p.lister == nil {
		return fmt.Errorf("poller lister required for sweep mode")
	}
	sweepEvery := p.cfg.SweepEvery
	if sweepEvery <= 0 {
		sweepEvery = 30 * time.Second
	}

	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	p.logg.Info(ctx, "pending order sweep started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.sweep(ctx, &wg)
		}
	}
}

func (p *Poller) sweep(ctx context.Context, wg *sync.WaitGroup) {
	window := p.cfg.SweepWindow
	if window <= 0 {
		window = 10 * time.Minute
	}
	orders, err := p.lister.ListPendingOrdersCreatedSince(ctx, time.Now().UTC().Add(-window), 100)
	if err != nil {
		p.logg.Error(ctx, "listing pending orders for sweep", err)
		return
	}

	for _, order := range orders {
		if p.isWatching(order.CorrelationID) {
			continue
		}
		correlationID := order.CorrelationID
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Watch(ctx, correlationID); err != nil {
				p.logg.Error(p.logg.WithCorrelationID(ctx, correlationID), "watch ended with error", err)
			}
		}()
	}
}

func (p *Poller) claim(correlationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.watching[correlationID]; ok {
		return false
	}
	p.watching[correlationID] = struct{}{}
	return true
}

func (p *Poller) release(correlationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watching, correlationID)
}

func (p *Poller) isWatching(correlationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.watching[correlationID]
	return ok
}
