package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/storage"
)

// Entry is one row of the append-only order ledger. The ledger is audit and
// backup only; the relational store stays authoritative when they disagree.
type Entry struct {
	OrderID       string            `json:"order_id,omitempty"`
	CorrelationID string            `json:"correlation_id"`
	Kind          enums.IntentKind  `json:"kind"`
	ProductRef    string            `json:"product_ref,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Variant       *string           `json:"variant,omitempty"`
	AmountCents   int               `json:"amount_cents"`
	Status        enums.OrderStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
}

// Service writes and queries the order ledger file. Entries are never updated
// in place: a paid order is a second entry for the same correlation id, and
// lookups resolve most-recent-match-wins.
type Service interface {
	Append(ctx context.Context, entry Entry) error
	AppendOrder(ctx context.Context, order *models.Order) error
	FindByKey(ctx context.Context, key string) (*Entry, error)
	LatestStatus(ctx context.Context, correlationID string) (enums.OrderStatus, bool, error)
}

type service struct {
	store storage.Store
	file  string
	logg  *logger.Logger
}

// NewService wires a ledger service over the configured storage backend.
func NewService(store storage.Store, file string, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if file == "" {
		return nil, fmt.Errorf("ledger file required")
	}
	return &service{store: store, file: file, logg: logg}, nil
}

func (s *service) Append(ctx context.Context, entry Entry) error {
	if entry.CorrelationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "correlation id is required")
	}
	if !entry.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger status %q", entry.Status))
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ledger entry")
	}
	if err := s.store.Append(ctx, s.file, raw); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}
	return nil
}

// AppendOrder snapshots an order row into the ledger.
func (s *service) AppendOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	return s.Append(ctx, Entry{
		OrderID:       order.ID.String(),
		CorrelationID: order.CorrelationID,
		Kind:          order.Kind,
		ProductRef:    order.ProductRef,
		CustomerEmail: order.CustomerEmail,
		Variant:       order.Variant,
		AmountCents:   order.AmountCents,
		Status:        order.Status,
		PaidAt:        order.PaidAt,
	})
}

// FindByKey returns the most recent entry whose correlation id or order id
// matches key.
func (s *service) FindByKey(ctx context.Context, key string) (*Entry, error) {
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lookup key is required")
	}

	items, err := s.store.Read(ctx, s.file)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read ledger")
	}

	for i := len(items) - 1; i >= 0; i-- {
		var entry Entry
		if err := json.Unmarshal(items[i], &entry); err != nil {
			if s.logg != nil {
				s.logg.Warn(ctx, fmt.Sprintf("skipping malformed ledger entry at index %d", i))
			}
			continue
		}
		if entry.CorrelationID == key || entry.OrderID == key {
			return &entry, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no ledger entry for key")
}

// LatestStatus reports the newest recorded status for a correlation id. The
// boolean is false when the ledger has no entry at all.
func (s *service) LatestStatus(ctx context.Context, correlationID string) (enums.OrderStatus, bool, error) {
	entry, err := s.FindByKey(ctx, correlationID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.Status, true, nil
}
