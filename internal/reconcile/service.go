package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/interbox/payments-backend/internal/charges"
	"github.com/interbox/payments-backend/internal/ledger"
	"github.com/interbox/payments-backend/internal/splits"
	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/metrics"
	"github.com/interbox/payments-backend/pkg/openpix"
)

// SplitProcessor is the disbursement surface the completion path needs.
type SplitProcessor interface {
	Process(ctx context.Context, order *models.Order, force bool) (*splits.Result, error)
}

// Notifier delivers payment confirmations. Best effort only.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, order *models.Order) error
}

// Outcome reports what one confirmation signal did.
type Outcome struct {
	CorrelationID string
	Completed     bool
	Duplicate     bool
	Ignored       bool
	Split         *splits.Result
}

// Service drives confirmation signals, from any source, through the single
// completion path: webhook, poller, and backfill sweeps all land here.
type Service interface {
	HandleEvent(ctx context.Context, event *openpix.WebhookEvent) (*Outcome, error)
	Complete(ctx context.Context, correlationID string, gatewayCharge *openpix.Charge) (*Outcome, error)
	Expire(ctx context.Context, correlationID string) error
}

type service struct {
	repo     charges.Repository
	ledger   ledger.Service
	splits   SplitProcessor
	guard    *Guard
	notifier Notifier
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
	now      func() time.Time
}

// NewService wires the reconciliation service. The guard and notifier are
// optional; everything else is required.
func NewService(repo charges.Repository, ledgerSvc ledger.Service, splitSvc SplitProcessor, guard *Guard, notifier Notifier, logg *logger.Logger, pm *metrics.PaymentMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reconcile repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("reconcile ledger required")
	}
	if splitSvc == nil {
		return nil, fmt.Errorf("reconcile split processor required")
	}
	if logg == nil {
		return nil, fmt.Errorf("reconcile logger required")
	}
	return &service{
		repo:     repo,
		ledger:   ledgerSvc,
		splits:   splitSvc,
		guard:    guard,
		notifier: notifier,
		logg:     logg,
		metrics:  pm,
		now:      time.Now,
	}, nil
}

func (s *service) HandleEvent(ctx context.Context, event *openpix.WebhookEvent) (*Outcome, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event is required")
	}

	correlationID := ""
	if event.Charge != nil {
		correlationID = event.Charge.CorrelationID
	}
	ctx = s.logg.WithCorrelationID(ctx, correlationID)

	switch {
	case event.IsCompletion():
		if correlationID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "completion event carries no correlation id")
		}
		return s.Complete(ctx, correlationID, event.Charge)
	case event.IsExpiration():
		if correlationID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiration event carries no correlation id")
		}
		if err := s.Expire(ctx, correlationID); err != nil {
			return nil, err
		}
		return &Outcome{CorrelationID: correlationID}, nil
	default:
		s.logg.Info(ctx, fmt.Sprintf("ignoring webhook event %q", event.Event))
		return &Outcome{CorrelationID: correlationID, Ignored: true}, nil
	}
}

// Complete transitions one order to paid and runs its side effects. The
// conditional update is the only authority on who wins: duplicates at any
// layer above it collapse into a no-op here.
func (s *service) Complete(ctx context.Context, correlationID string, gatewayCharge *openpix.Charge) (outcome *Outcome, err error) {
	if correlationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation id is required")
	}
	ctx = s.logg.WithCorrelationID(ctx, correlationID)

	if !s.guard.Acquire(ctx, correlationID) {
		s.logg.Info(ctx, "completion already in flight, skipping")
		s.metrics.IncDuplicate()
		return &Outcome{CorrelationID: correlationID, Duplicate: true}, nil
	}
	// A failed completion releases the guard so the gateway's retry can
	// reprocess instead of being swallowed for the guard TTL.
	defer func() {
		if err != nil {
			s.guard.Release(ctx, correlationID)
		}
	}()

	order, err := s.resolveOrder(ctx, correlationID, gatewayCharge)
	if err != nil {
		return nil, err
	}

	paidAt := s.now().UTC()
	won, err := s.repo.MarkOrderPaid(ctx, correlationID, paidAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if !won {
		s.logg.Info(ctx, "order already paid, duplicate signal ignored")
		s.metrics.IncDuplicate()
		return &Outcome{CorrelationID: correlationID, Duplicate: true}, nil
	}

	order.Status = enums.OrderStatusPaid
	order.PaidAt = &paidAt

	var providerID *string
	if gatewayCharge != nil && gatewayCharge.ProviderID != "" {
		id := gatewayCharge.ProviderID
		providerID = &id
	}
	if err := s.repo.SetChargeStatus(ctx, correlationID, enums.ChargeStatusCompleted, providerID); err != nil {
		// The order is paid; a stale charge row is cosmetic and the
		// expiry sweep will not touch a paid order.
		s.logg.Error(ctx, "marking charge completed", err)
	}

	if err := s.ledger.AppendOrder(ctx, order); err != nil {
		s.logg.Error(ctx, "appending paid order to ledger", err)
		s.metrics.IncLedgerFailure()
	}

	outcome = &Outcome{CorrelationID: correlationID, Completed: true}
	splitResult, splitErr := s.splits.Process(ctx, order, false)
	if splitErr != nil {
		s.logg.Error(ctx, "processing split for paid order", splitErr)
	}
	outcome.Split = splitResult

	if s.notifier != nil {
		if notifyErr := s.notifier.PaymentConfirmed(ctx, order); notifyErr != nil {
			s.logg.Warn(ctx, "payment confirmation notification failed")
		}
	}

	s.metrics.IncCompletion(string(order.Kind))
	s.logg.Info(ctx, "order completed")
	return outcome, nil
}

// resolveOrder finds the order to complete: the relational row first, the
// ledger second, and as a last resort a minimal order synthesized from the
// gateway charge so a confirmed payment is never dropped on the floor.
func (s *service) resolveOrder(ctx context.Context, correlationID string, gatewayCharge *openpix.Charge) (*models.Order, error) {
	order, err := s.repo.FindOrderByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}
	if order != nil {
		return order, nil
	}

	synthesized := &models.Order{
		CorrelationID: correlationID,
		Kind:          kindFromCorrelationID(correlationID),
		Status:        enums.OrderStatusPending,
	}

	entry, ledgerErr := s.ledger.FindByKey(ctx, correlationID)
	switch {
	case ledgerErr == nil:
		synthesized.Kind = entry.Kind
		synthesized.ProductRef = entry.ProductRef
		synthesized.CustomerEmail = entry.CustomerEmail
		synthesized.Variant = entry.Variant
		synthesized.AmountCents = entry.AmountCents
	case pkgerrors.IsCode(ledgerErr, pkgerrors.CodeNotFound):
		if gatewayCharge == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for correlation id")
		}
		synthesized.AmountCents = gatewayCharge.Value
	default:
		return nil, ledgerErr
	}

	if synthesized.AmountCents <= 0 && gatewayCharge != nil {
		synthesized.AmountCents = gatewayCharge.Value
	}

	s.logg.Warn(ctx, "order missing for confirmed charge, synthesizing")
	if err := s.repo.CreateOrder(ctx, synthesized); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create synthesized order")
	}
	return synthesized, nil
}

// Expire closes an unpaid charge and cancels its pending order. Paid orders
// are untouchable here: the cancel is conditional on pending status.
func (s *service) Expire(ctx context.Context, correlationID string) error {
	if correlationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "correlation id is required")
	}
	ctx = s.logg.WithCorrelationID(ctx, correlationID)

	order, err := s.repo.FindOrderByCorrelationID(ctx, correlationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}
	if order != nil && order.Status == enums.OrderStatusPaid {
		s.logg.Warn(ctx, "expiration signal for paid order ignored")
		return nil
	}

	if err := s.repo.SetChargeStatus(ctx, correlationID, enums.ChargeStatusExpired, nil); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark charge expired")
	}

	cancelled, err := s.repo.CancelPendingOrder(ctx, correlationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel pending order")
	}
	if cancelled && order != nil {
		order.Status = enums.OrderStatusCancelled
		if err := s.ledger.AppendOrder(ctx, order); err != nil {
			s.logg.Error(ctx, "appending cancelled order to ledger", err)
			s.metrics.IncLedgerFailure()
		}
	}

	s.logg.Info(ctx, "charge expired")
	return nil
}

// kindFromCorrelationID recovers the intent kind from the id's slug segment.
func kindFromCorrelationID(correlationID string) enums.IntentKind {
	for _, kind := range []enums.IntentKind{
		enums.IntentKindRegistrationJudge,
		enums.IntentKindRegistrationStaff,
		enums.IntentKindRegistrationAudiovisual,
		enums.IntentKindProductPurchase,
	} {
		if strings.HasPrefix(correlationID, "interbox_"+kind.Slug()+"_") {
			return kind
		}
	}
	return enums.IntentKindProductPurchase
}
