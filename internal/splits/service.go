package splits

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/metrics"
	"github.com/interbox/payments-backend/pkg/openpix"
	"github.com/interbox/payments-backend/pkg/storage"
)

// Transferer is the gateway surface the split engine needs.
type Transferer interface {
	Transfer(ctx context.Context, params openpix.TransferParams) (*openpix.Transfer, error)
}

// Outcome is the result of one recipient's disbursement.
type Outcome struct {
	Recipient   string            `json:"recipient"`
	AmountCents int               `json:"amount_cents"`
	Status      enums.SplitStatus `json:"status"`
	Error       string            `json:"error,omitempty"`

	providerID string
}

// Result summarizes one split run over an order.
type Result struct {
	Skipped  bool      `json:"skipped"`
	Reason   string    `json:"reason,omitempty"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failed counts recipients whose transfer did not go through.
func (r *Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == enums.SplitStatusFailed {
			n++
		}
	}
	return n
}

// Succeeded counts recipients whose transfer went through.
func (r *Result) Succeeded() int {
	return len(r.Outcomes) - r.Failed()
}

// Validation is the audit verdict over a finished run.
type Validation struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}

// Validate checks that the disbursed amounts sum exactly to the order total
// and that every recipient reached a terminal status. Failures are issues,
// not errors: a partial run is a valid, reportable state.
func Validate(outcomes []Outcome, totalAmountCents int) Validation {
	v := Validation{Valid: true}

	sum := 0
	for _, o := range outcomes {
		sum += o.AmountCents
		switch o.Status {
		case enums.SplitStatusSuccess:
		case enums.SplitStatusFailed:
			msg := fmt.Sprintf("%s: transfer failed", o.Recipient)
			if o.Error != "" {
				msg = fmt.Sprintf("%s: %s", o.Recipient, o.Error)
			}
			v.Issues = append(v.Issues, msg)
		default:
			v.Issues = append(v.Issues, fmt.Sprintf("%s: non-terminal status %q", o.Recipient, o.Status))
		}
	}
	if sum != totalAmountCents {
		v.Issues = append(v.Issues, fmt.Sprintf("amounts sum to %d, expected %d", sum, totalAmountCents))
	}

	v.Valid = len(v.Issues) == 0
	return v
}

// Service runs the disbursement engine for paid orders.
type Service interface {
	Process(ctx context.Context, order *models.Order, force bool) (*Result, error)
	Preview(category string, amountCents int) ([]Allocation, error)
	ListByOrder(ctx context.Context, orderRef string) ([]models.SplitTransaction, error)
}

type service struct {
	table     Table
	repo      Repository
	gateway   Transferer
	store     storage.Store
	splitFile string
	logg      *logger.Logger
	metrics   *metrics.PaymentMetrics
}

// NewService wires the split engine.
func NewService(table Table, repo Repository, gateway Transferer, store storage.Store, splitFile string, logg *logger.Logger, pm *metrics.PaymentMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("splits repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("splits gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("splits logger required")
	}
	return &service{
		table:     table,
		repo:      repo,
		gateway:   gateway,
		store:     store,
		splitFile: splitFile,
		logg:      logg,
		metrics:   pm,
	}, nil
}

// Preview computes the allocation for a category without touching the gateway.
func (s *service) Preview(category string, amountCents int) ([]Allocation, error) {
	recipients, ok := s.table[category]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no split table entry for category %q", category))
	}
	allocations, err := Allocate(amountCents, recipients)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "allocate split")
	}
	return allocations, nil
}

func (s *service) ListByOrder(ctx context.Context, orderRef string) ([]models.SplitTransaction, error) {
	if orderRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order ref is required")
	}
	return s.repo.ListByOrderRef(ctx, orderRef)
}

// Process disburses a paid order's amount across the table recipients. Each
// recipient transfers independently: one failure never blocks or reverts the
// others. Replays short-circuit when a successful run is already recorded,
// unless force is set.
func (s *service) Process(ctx context.Context, order *models.Order, force bool) (*Result, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if order.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}

	ctx = s.logg.WithCorrelationID(ctx, order.CorrelationID)
	category := order.Kind.Category()

	recipients, ok := s.table[category]
	if !ok || len(recipients) == 0 {
		s.logg.Info(ctx, fmt.Sprintf("no split table entry for category %q, settling in full", category))
		return &Result{Skipped: true, Reason: "no split table entry"}, nil
	}

	if !force {
		done, err := s.repo.HasSuccessful(ctx, order.CorrelationID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check prior split runs")
		}
		if done {
			s.logg.Info(ctx, "split already processed for order, skipping")
			return &Result{Skipped: true, Reason: "already processed"}, nil
		}
	}

	allocations, err := Allocate(order.AmountCents, recipients)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "allocate split")
	}

	result := &Result{Outcomes: make([]Outcome, 0, len(allocations))}
	var infraErrs []error

	for i, alloc := range allocations {
		outcome := s.disburse(ctx, order, category, alloc, i)
		result.Outcomes = append(result.Outcomes, outcome)

		txn := &models.SplitTransaction{
			OrderRef:      order.ID.String(),
			CorrelationID: order.CorrelationID,
			Category:      category,
			Recipient:     alloc.Recipient.Recipient,
			PixKey:        alloc.Recipient.PixKey,
			AmountCents:   alloc.AmountCents,
			Percent:       alloc.Recipient.Percent,
			Status:        outcome.Status,
		}
		if outcome.Error != "" {
			errText := outcome.Error
			txn.Error = &errText
		}
		if outcome.providerID != "" {
			providerID := outcome.providerID
			txn.ProviderTransactionID = &providerID
		}

		if err := s.repo.Create(ctx, txn); err != nil {
			s.logg.Error(ctx, "recording split transaction", err)
			infraErrs = append(infraErrs, err)
		}
		s.appendLedger(ctx, order, txn)
	}

	return result, multierr.Combine(infraErrs...)
}

func (s *service) disburse(ctx context.Context, order *models.Order, category string, alloc Allocation, idx int) Outcome {
	outcome := Outcome{
		Recipient:   alloc.Recipient.Recipient,
		AmountCents: alloc.AmountCents,
		Status:      enums.SplitStatusSuccess,
	}

	transfer, err := s.gateway.Transfer(ctx, openpix.TransferParams{
		Value:         alloc.AmountCents,
		PixKey:        alloc.Recipient.PixKey,
		CorrelationID: fmt.Sprintf("%s_split_%d", order.CorrelationID, idx),
		Comment:       fmt.Sprintf("split %s %s", category, alloc.Recipient.Recipient),
	})
	if err != nil {
		s.logg.Error(ctx, fmt.Sprintf("split transfer to %s failed", alloc.Recipient.Recipient), err)
		s.metrics.IncSplitFailure(alloc.Recipient.Recipient)
		outcome.Status = enums.SplitStatusFailed
		outcome.Error = err.Error()
		return outcome
	}

	outcome.providerID = transfer.TransactionID
	return outcome
}

type splitLedgerEntry struct {
	OrderRef      string            `json:"order_ref"`
	CorrelationID string            `json:"correlation_id"`
	Category      string            `json:"category"`
	Recipient     string            `json:"recipient"`
	AmountCents   int               `json:"amount_cents"`
	Percent       string            `json:"percent"`
	Status        enums.SplitStatus `json:"status"`
	Error         *string           `json:"error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// appendLedger mirrors the transaction row into the split ledger file. The
// relational row is authoritative; a ledger miss is logged and counted, never
// propagated.
func (s *service) appendLedger(ctx context.Context, order *models.Order, txn *models.SplitTransaction) {
	if s.store == nil || s.splitFile == "" {
		return
	}
	entry := splitLedgerEntry{
		OrderRef:      order.ID.String(),
		CorrelationID: order.CorrelationID,
		Category:      txn.Category,
		Recipient:     txn.Recipient,
		AmountCents:   txn.AmountCents,
		Percent:       txn.Percent.String(),
		Status:        txn.Status,
		Error:         txn.Error,
		CreatedAt:     time.Now().UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		s.logg.Error(ctx, "encoding split ledger entry", err)
		return
	}
	if err := s.store.Append(ctx, s.splitFile, raw); err != nil {
		s.logg.Error(ctx, "appending split ledger entry", err)
		s.metrics.IncLedgerFailure()
	}
}
