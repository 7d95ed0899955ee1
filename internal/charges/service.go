package charges

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/interbox/payments-backend/internal/ledger"
	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/metrics"
	"github.com/interbox/payments-backend/pkg/openpix"
)

// Gateway is the PIX gateway surface the charge service needs.
type Gateway interface {
	CreateCharge(ctx context.Context, params openpix.ChargeParams) (*openpix.Charge, error)
	GetCharge(ctx context.Context, correlationID string) (*openpix.Charge, error)
}

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput is a request to open a new charge.
type CreateInput struct {
	Kind          enums.IntentKind
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	CustomerTaxID string
	ProductRef    string
	Variant       *string
	AmountCents   int
	Comment       string
}

// ChargeView is the API-facing shape of a charge.
type ChargeView struct {
	CorrelationID  string             `json:"correlation_id"`
	Kind           enums.IntentKind   `json:"kind"`
	Status         enums.ChargeStatus `json:"status"`
	AmountCents    int                `json:"amount_cents"`
	BRCode         string             `json:"qr_payload,omitempty"`
	QRCodeImageURL string             `json:"qr_image_url,omitempty"`
	Duplicate      bool               `json:"duplicate,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// StatusView pairs the charge state with its order state.
type StatusView struct {
	CorrelationID string             `json:"correlation_id"`
	ChargeStatus  enums.ChargeStatus `json:"charge_status"`
	OrderStatus   enums.OrderStatus  `json:"order_status"`
	Paid          bool               `json:"paid"`
	AmountCents   int                `json:"amount_cents"`
}

// Service owns charge creation and read paths. Completion is reconcile's
// job: nothing here transitions an order to paid.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*ChargeView, error)
	GetCharge(ctx context.Context, correlationID string) (*ChargeView, error)
	PaymentStatus(ctx context.Context, id string) (*StatusView, error)
}

type service struct {
	repo      Repository
	txRunner  TxRunner
	gateway   Gateway
	ledger    ledger.Service
	logg      *logger.Logger
	metrics   *metrics.PaymentMetrics
	chargeTTL time.Duration
	now       func() time.Time
}

// NewService wires the charge service.
func NewService(repo Repository, txRunner TxRunner, gateway Gateway, ledgerSvc ledger.Service, logg *logger.Logger, pm *metrics.PaymentMetrics, chargeTTL time.Duration) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("charges repository required")
	}
	if txRunner == nil {
		return nil, fmt.Errorf("charges tx runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("charges gateway required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("charges ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("charges logger required")
	}
	if chargeTTL <= 0 {
		chargeTTL = 24 * time.Hour
	}
	return &service{
		repo:      repo,
		txRunner:  txRunner,
		gateway:   gateway,
		ledger:    ledgerSvc,
		logg:      logg,
		metrics:   pm,
		chargeTTL: chargeTTL,
		now:       time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*ChargeView, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(input.Kind, input.CustomerEmail, input.CustomerTaxID, input.ProductRef)

	// An identical intent with an open charge is a no-op: hand back the
	// existing payment artifacts instead of opening a second charge.
	existing, err := s.repo.FindActiveChargeByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup open charge")
	}
	if existing != nil {
		ctx = s.logg.WithCorrelationID(ctx, existing.CorrelationID)
		s.logg.Info(ctx, "duplicate intent, returning open charge")
		view := chargeToView(existing)
		view.Duplicate = true
		return view, nil
	}

	correlationID := s.newCorrelationID(input, fingerprint)
	ctx = s.logg.WithCorrelationID(ctx, correlationID)

	gatewayCharge, err := s.gateway.CreateCharge(ctx, openpix.ChargeParams{
		CorrelationID: correlationID,
		Value:         input.AmountCents,
		Comment:       input.Comment,
		ExpiresIn:     int(s.chargeTTL.Seconds()),
		Customer: openpix.Customer{
			Name:  input.CustomerName,
			Email: input.CustomerEmail,
			Phone: input.CustomerPhone,
			TaxID: input.CustomerTaxID,
		},
		AdditionalInfo: map[string]string{
			"kind":    string(input.Kind),
			"product": input.ProductRef,
		},
	})
	if err != nil {
		return nil, err
	}

	charge := &models.Charge{
		CorrelationID:  correlationID,
		Kind:           input.Kind,
		Fingerprint:    fingerprint,
		Status:         enums.ChargeStatusActive,
		AmountCents:    input.AmountCents,
		BRCode:         gatewayCharge.BRCode,
		QRCodeImageURL: gatewayCharge.QRCodeImage,
		CustomerName:   input.CustomerName,
		CustomerEmail:  input.CustomerEmail,
		CustomerPhone:  input.CustomerPhone,
		CustomerTaxID:  input.CustomerTaxID,
	}
	if gatewayCharge.ProviderID != "" {
		providerID := gatewayCharge.ProviderID
		charge.ProviderID = &providerID
	}

	order := &models.Order{
		CorrelationID: correlationID,
		Kind:          input.Kind,
		ProductRef:    input.ProductRef,
		CustomerEmail: input.CustomerEmail,
		Variant:       input.Variant,
		AmountCents:   input.AmountCents,
		Status:        enums.OrderStatusPending,
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateCharge(ctx, charge); err != nil {
			return err
		}
		return repo.CreateOrder(ctx, order)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist charge and order")
	}

	// The relational row is authoritative; a ledger miss is repaired later
	// by the drift job, so it never fails the request.
	if err := s.ledger.AppendOrder(ctx, order); err != nil {
		s.logg.Error(ctx, "appending pending order to ledger", err)
		s.metrics.IncLedgerFailure()
	}

	s.logg.Info(ctx, "charge created")
	return chargeToView(charge), nil
}

// GetCharge reads the charge, preferring the gateway's view of a still-open
// charge. Reads never mutate: a paid status learned here still completes
// through the reconcile path.
func (s *service) GetCharge(ctx context.Context, correlationID string) (*ChargeView, error) {
	if correlationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation id is required")
	}
	ctx = s.logg.WithCorrelationID(ctx, correlationID)

	local, err := s.repo.FindChargeByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup charge")
	}
	if local == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "charge not found")
	}

	view := chargeToView(local)
	if local.Status.IsTerminal() {
		return view, nil
	}

	remote, err := s.gateway.GetCharge(ctx, correlationID)
	if err != nil {
		// Gateway hiccups degrade to the local snapshot.
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(ctx, "gateway read failed, serving local charge state")
		}
		return view, nil
	}
	if status, parseErr := enums.ParseChargeStatus(remote.Status); parseErr == nil {
		view.Status = status
	}
	return view, nil
}

// PaymentStatus reports the combined charge and order state for an id, which
// may be a correlation id or an order id. The ledger backfills orders the
// relational store does not have.
func (s *service) PaymentStatus(ctx context.Context, id string) (*StatusView, error) {
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "id is required")
	}
	ctx = s.logg.WithCorrelationID(ctx, id)

	order, err := s.repo.FindOrderByCorrelationID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order")
	}

	view := &StatusView{CorrelationID: id}
	if order != nil {
		view.CorrelationID = order.CorrelationID
		view.OrderStatus = order.Status
		view.AmountCents = order.AmountCents
	} else {
		entry, err := s.ledger.FindByKey(ctx, id)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
			}
			return nil, err
		}
		view.CorrelationID = entry.CorrelationID
		view.OrderStatus = entry.Status
		view.AmountCents = entry.AmountCents
	}
	view.Paid = view.OrderStatus == enums.OrderStatusPaid

	charge, err := s.repo.FindChargeByCorrelationID(ctx, view.CorrelationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup charge")
	}
	if charge != nil {
		view.ChargeStatus = charge.Status
	} else if view.Paid {
		view.ChargeStatus = enums.ChargeStatusCompleted
	} else {
		view.ChargeStatus = enums.ChargeStatusActive
	}
	return view, nil
}

func (s *service) newCorrelationID(input CreateInput, fingerprint string) string {
	discriminator := shortFingerprint(fingerprint)
	if input.Kind == enums.IntentKindProductPurchase && input.ProductRef != "" {
		discriminator = slugify(input.ProductRef)
	}
	return fmt.Sprintf("interbox_%s_%s_%d", input.Kind.Slug(), discriminator, s.now().UnixNano())
}

func validateCreateInput(input CreateInput) error {
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid intent kind %q", input.Kind))
	}
	if input.AmountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer email is required")
	}
	if input.Kind == enums.IntentKindProductPurchase && strings.TrimSpace(input.ProductRef) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product ref is required for product purchases")
	}
	return nil
}

func chargeToView(charge *models.Charge) *ChargeView {
	return &ChargeView{
		CorrelationID:  charge.CorrelationID,
		Kind:           charge.Kind,
		Status:         charge.Status,
		AmountCents:    charge.AmountCents,
		BRCode:         charge.BRCode,
		QRCodeImageURL: charge.QRCodeImageURL,
		CreatedAt:      charge.CreatedAt,
	}
}

func slugify(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "item"
	}
	return slug
}
