package cron

import (
	"context"
	"testing"
	"time"

	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
)

type fakePaidReader struct {
	orders []models.Order
}

func (f *fakePaidReader) ListPaidOrdersSince(_ context.Context, _ time.Time, _ int) ([]models.Order, error) {
	return f.orders, nil
}

type fakeOrderLedger struct {
	statuses map[string]enums.OrderStatus
	appended []string
}

func (f *fakeOrderLedger) LatestStatus(_ context.Context, correlationID string) (enums.OrderStatus, bool, error) {
	status, ok := f.statuses[correlationID]
	return status, ok, nil
}

func (f *fakeOrderLedger) AppendOrder(_ context.Context, order *models.Order) error {
	f.appended = append(f.appended, order.CorrelationID)
	if f.statuses == nil {
		f.statuses = map[string]enums.OrderStatus{}
	}
	f.statuses[order.CorrelationID] = order.Status
	return nil
}

func paidOrder(correlationID string) models.Order {
	paidAt := time.Now().UTC()
	return models.Order{
		CorrelationID: correlationID,
		Kind:          enums.IntentKindProductPurchase,
		AmountCents:   10000,
		Status:        enums.OrderStatusPaid,
		PaidAt:        &paidAt,
	}
}

func TestLedgerRepairJobAppendsMissingEntries(t *testing.T) {
	reader := &fakePaidReader{orders: []models.Order{
		paidOrder("interbox_produto_a_1"),
		paidOrder("interbox_produto_b_1"),
		paidOrder("interbox_produto_c_1"),
	}}
	led := &fakeOrderLedger{statuses: map[string]enums.OrderStatus{
		// Already correct in the ledger.
		"interbox_produto_a_1": enums.OrderStatusPaid,
		// Stale entry that never saw the paid append.
		"interbox_produto_b_1": enums.OrderStatusPending,
	}}

	job, err := NewLedgerRepairJob(LedgerRepairJobParams{
		Logger: testLogger(),
		Reader: reader,
		Ledger: led,
	})
	if err != nil {
		t.Fatalf("NewLedgerRepairJob failed: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(led.appended) != 2 {
		t.Fatalf("expected 2 repairs, got %v", led.appended)
	}
	for _, correlationID := range []string{"interbox_produto_b_1", "interbox_produto_c_1"} {
		if led.statuses[correlationID] != enums.OrderStatusPaid {
			t.Fatalf("expected %s repaired to paid", correlationID)
		}
	}
}

func TestLedgerRepairJobIdempotent(t *testing.T) {
	reader := &fakePaidReader{orders: []models.Order{paidOrder("interbox_produto_d_1")}}
	led := &fakeOrderLedger{}

	job, err := NewLedgerRepairJob(LedgerRepairJobParams{
		Logger: testLogger(),
		Reader: reader,
		Ledger: led,
	})
	if err != nil {
		t.Fatalf("NewLedgerRepairJob failed: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if len(led.appended) != 1 {
		t.Fatalf("repair must not duplicate entries, got %v", led.appended)
	}
}
