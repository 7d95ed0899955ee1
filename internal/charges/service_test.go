package charges

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/interbox/payments-backend/internal/ledger"
	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/openpix"
)

type fakeRepo struct {
	charges map[string]*models.Charge
	orders  map[string]*models.Order
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		charges: map[string]*models.Charge{},
		orders:  map[string]*models.Order{},
	}
}

func (f *fakeRepo) WithTx(_ *gorm.DB) Repository { return f }

func (f *fakeRepo) CreateCharge(_ context.Context, charge *models.Charge) error {
	if charge.ID == uuid.Nil {
		charge.ID = uuid.New()
	}
	charge.CreatedAt = time.Now().UTC()
	f.charges[charge.CorrelationID] = charge
	return nil
}

func (f *fakeRepo) FindChargeByCorrelationID(_ context.Context, correlationID string) (*models.Charge, error) {
	return f.charges[correlationID], nil
}

func (f *fakeRepo) FindActiveChargeByFingerprint(_ context.Context, fingerprint string) (*models.Charge, error) {
	for _, charge := range f.charges {
		if charge.Fingerprint == fingerprint && charge.Status == enums.ChargeStatusActive {
			return charge, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) SetChargeStatus(_ context.Context, correlationID string, status enums.ChargeStatus, providerID *string) error {
	if charge, ok := f.charges[correlationID]; ok {
		charge.Status = status
		if providerID != nil {
			charge.ProviderID = providerID
		}
	}
	return nil
}

func (f *fakeRepo) ListActiveChargesOlderThan(_ context.Context, cutoff time.Time, _ int) ([]models.Charge, error) {
	var out []models.Charge
	for _, charge := range f.charges {
		if charge.Status == enums.ChargeStatusActive && charge.CreatedAt.Before(cutoff) {
			out = append(out, *charge)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateOrder(_ context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = time.Now().UTC()
	f.orders[order.CorrelationID] = order
	return nil
}

func (f *fakeRepo) FindOrderByCorrelationID(_ context.Context, correlationID string) (*models.Order, error) {
	return f.orders[correlationID], nil
}

func (f *fakeRepo) MarkOrderPaid(_ context.Context, correlationID string, paidAt time.Time) (bool, error) {
	order, ok := f.orders[correlationID]
	if !ok || order.Status == enums.OrderStatusPaid {
		return false, nil
	}
	order.Status = enums.OrderStatusPaid
	order.PaidAt = &paidAt
	return true, nil
}

func (f *fakeRepo) CancelPendingOrder(_ context.Context, correlationID string) (bool, error) {
	order, ok := f.orders[correlationID]
	if !ok || order.Status != enums.OrderStatusPending {
		return false, nil
	}
	order.Status = enums.OrderStatusCancelled
	return true, nil
}

func (f *fakeRepo) ListPendingOrdersCreatedSince(_ context.Context, since time.Time, _ int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.Status == enums.OrderStatusPending && !order.CreatedAt.Before(since) {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListPaidOrdersSince(_ context.Context, since time.Time, _ int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.Status == enums.OrderStatusPaid && order.PaidAt != nil && !order.PaidAt.Before(since) {
			out = append(out, *order)
		}
	}
	return out, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeGateway struct {
	createCalls int
	getCharge   *openpix.Charge
	getErr      error
}

func (f *fakeGateway) CreateCharge(_ context.Context, params openpix.ChargeParams) (*openpix.Charge, error) {
	f.createCalls++
	return &openpix.Charge{
		CorrelationID: params.CorrelationID,
		ProviderID:    "prov-123",
		Status:        "ACTIVE",
		Value:         params.Value,
		BRCode:        "00020126pixpayload",
		QRCodeImage:   "https://gw.example/qr/" + params.CorrelationID + ".png",
	}, nil
}

func (f *fakeGateway) GetCharge(_ context.Context, _ string) (*openpix.Charge, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getCharge, nil
}

type fakeLedger struct {
	entries []ledger.Entry
}

func (f *fakeLedger) Append(_ context.Context, entry ledger.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLedger) AppendOrder(_ context.Context, order *models.Order) error {
	f.entries = append(f.entries, ledger.Entry{
		OrderID:       order.ID.String(),
		CorrelationID: order.CorrelationID,
		Kind:          order.Kind,
		AmountCents:   order.AmountCents,
		Status:        order.Status,
	})
	return nil
}

func (f *fakeLedger) FindByKey(_ context.Context, key string) (*ledger.Entry, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].CorrelationID == key || f.entries[i].OrderID == key {
			return &f.entries[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no ledger entry for key")
}

func (f *fakeLedger) LatestStatus(ctx context.Context, correlationID string) (enums.OrderStatus, bool, error) {
	entry, err := f.FindByKey(ctx, correlationID)
	if err != nil {
		return "", false, nil
	}
	return entry.Status, true, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "charges-test"})
}

func newTestService(t *testing.T, repo *fakeRepo, gw *fakeGateway, led *fakeLedger) Service {
	t.Helper()
	svc, err := NewService(repo, fakeTxRunner{}, gw, led, testLogger(), nil, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func judgeInput() CreateInput {
	return CreateInput{
		Kind:          enums.IntentKindRegistrationJudge,
		CustomerName:  "Ana Silva",
		CustomerEmail: "ana@example.com",
		CustomerTaxID: "123.456.789-09",
		AmountCents:   9900,
	}
}

func TestCreateJudgeRegistrationCharge(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	led := &fakeLedger{}
	svc := newTestService(t, repo, gw, led)

	view, err := svc.Create(context.Background(), judgeInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(view.CorrelationID, "interbox_judge_") {
		t.Fatalf("unexpected correlation id %q", view.CorrelationID)
	}
	if view.Status != enums.ChargeStatusActive {
		t.Fatalf("unexpected status %s", view.Status)
	}
	if view.BRCode == "" || view.QRCodeImageURL == "" {
		t.Fatalf("expected payment artifacts, got %+v", view)
	}

	order := repo.orders[view.CorrelationID]
	if order == nil || order.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending order, got %+v", order)
	}
	if len(led.entries) != 1 || led.entries[0].Status != enums.OrderStatusPending {
		t.Fatalf("expected pending ledger entry, got %+v", led.entries)
	}
}

func TestCreateDuplicateIntentReturnsOpenCharge(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := newTestService(t, repo, gw, &fakeLedger{})
	ctx := context.Background()

	first, err := svc.Create(ctx, judgeInput())
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	// Same payer, same kind, different tax id formatting.
	input := judgeInput()
	input.CustomerTaxID = "12345678909"
	second, err := svc.Create(ctx, input)
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}

	if second.CorrelationID != first.CorrelationID {
		t.Fatalf("expected same charge, got %q and %q", first.CorrelationID, second.CorrelationID)
	}
	if !second.Duplicate {
		t.Fatal("expected duplicate flag on replayed intent")
	}
	if gw.createCalls != 1 {
		t.Fatalf("expected one gateway create, got %d", gw.createCalls)
	}
}

func TestCreateNewChargeAfterCompletion(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := newTestService(t, repo, gw, &fakeLedger{})
	ctx := context.Background()

	first, err := svc.Create(ctx, judgeInput())
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	repo.charges[first.CorrelationID].Status = enums.ChargeStatusCompleted

	second, err := svc.Create(ctx, judgeInput())
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if second.CorrelationID == first.CorrelationID {
		t.Fatal("completed charge must not be reused for a new intent")
	}
	if gw.createCalls != 2 {
		t.Fatalf("expected two gateway creates, got %d", gw.createCalls)
	}
}

func TestCreateProductCorrelationID(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeGateway{}, &fakeLedger{})

	view, err := svc.Create(context.Background(), CreateInput{
		Kind:          enums.IntentKindProductPurchase,
		CustomerName:  "Bruno Costa",
		CustomerEmail: "bruno@example.com",
		ProductRef:    "Camiseta Oficial",
		AmountCents:   10000,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !strings.HasPrefix(view.CorrelationID, "interbox_produto_camiseta-oficial_") {
		t.Fatalf("unexpected correlation id %q", view.CorrelationID)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeGateway{}, &fakeLedger{})
	ctx := context.Background()

	cases := []CreateInput{
		{},
		{Kind: enums.IntentKindRegistrationJudge, CustomerName: "A", CustomerEmail: "a@x", AmountCents: 0},
		{Kind: enums.IntentKindRegistrationJudge, CustomerEmail: "a@x", AmountCents: 100},
		{Kind: enums.IntentKindProductPurchase, CustomerName: "A", CustomerEmail: "a@x", AmountCents: 100},
	}
	for i, input := range cases {
		if _, err := svc.Create(ctx, input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestGetChargeUnknownIDIsNotFound(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeGateway{}, &fakeLedger{})

	_, err := svc.GetCharge(context.Background(), "interbox_judge_missing_1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found code, got %v", err)
	}
}

func TestGetChargeReadThroughDoesNotMutate(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := newTestService(t, repo, gw, &fakeLedger{})
	ctx := context.Background()

	view, err := svc.Create(ctx, judgeInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	gw.getCharge = &openpix.Charge{CorrelationID: view.CorrelationID, Status: "COMPLETED"}
	got, err := svc.GetCharge(ctx, view.CorrelationID)
	if err != nil {
		t.Fatalf("GetCharge failed: %v", err)
	}
	if got.Status != enums.ChargeStatusCompleted {
		t.Fatalf("expected gateway status to surface, got %s", got.Status)
	}

	// Reading must not complete anything locally.
	if repo.charges[view.CorrelationID].Status != enums.ChargeStatusActive {
		t.Fatal("read path mutated the stored charge")
	}
	if repo.orders[view.CorrelationID].Status != enums.OrderStatusPending {
		t.Fatal("read path mutated the stored order")
	}
}

func TestGetChargeGatewayFailureServesLocalState(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := newTestService(t, repo, gw, &fakeLedger{})
	ctx := context.Background()

	view, err := svc.Create(ctx, judgeInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	gw.getErr = pkgerrors.New(pkgerrors.CodeDependency, "gateway unreachable")
	got, err := svc.GetCharge(ctx, view.CorrelationID)
	if err != nil {
		t.Fatalf("GetCharge failed: %v", err)
	}
	if got.Status != enums.ChargeStatusActive {
		t.Fatalf("expected local fallback, got %s", got.Status)
	}
}

func TestPaymentStatusLedgerFallback(t *testing.T) {
	repo := newFakeRepo()
	led := &fakeLedger{entries: []ledger.Entry{{
		CorrelationID: "interbox_produto_bone_9",
		Kind:          enums.IntentKindProductPurchase,
		AmountCents:   4500,
		Status:        enums.OrderStatusPaid,
	}}}
	svc := newTestService(t, repo, &fakeGateway{}, led)

	status, err := svc.PaymentStatus(context.Background(), "interbox_produto_bone_9")
	if err != nil {
		t.Fatalf("PaymentStatus failed: %v", err)
	}
	if !status.Paid || status.OrderStatus != enums.OrderStatusPaid {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.ChargeStatus != enums.ChargeStatusCompleted {
		t.Fatalf("expected inferred completed charge, got %s", status.ChargeStatus)
	}
}

func TestPaymentStatusUnknownID(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeGateway{}, &fakeLedger{})

	_, err := svc.PaymentStatus(context.Background(), "missing")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found code, got %v", err)
	}
}

func TestFingerprintNormalization(t *testing.T) {
	a := Fingerprint(enums.IntentKindRegistrationJudge, "Ana@Example.com ", "123.456.789-09", "")
	b := Fingerprint(enums.IntentKindRegistrationJudge, "ana@example.com", "12345678909", "")
	if a != b {
		t.Fatal("expected equivalent intents to fingerprint identically")
	}
	c := Fingerprint(enums.IntentKindRegistrationStaff, "ana@example.com", "12345678909", "")
	if a == c {
		t.Fatal("expected different kinds to fingerprint differently")
	}
}
