package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/interbox/payments-backend/internal/reconcile"
	"github.com/interbox/payments-backend/pkg/openpix"
)

type fakeChargeLister struct {
	charges []openpix.Charge
	err     error
}

func (f *fakeChargeLister) ListCharges(ctx context.Context, sinceDays int) ([]openpix.Charge, error) {
	return f.charges, f.err
}

type fakeCompleter struct {
	completed []string
	duplicate map[string]bool
	failFor   map[string]error
}

func (f *fakeCompleter) Complete(ctx context.Context, correlationID string, gatewayCharge *openpix.Charge) (*reconcile.Outcome, error) {
	if err := f.failFor[correlationID]; err != nil {
		return nil, err
	}
	if f.duplicate[correlationID] {
		return &reconcile.Outcome{CorrelationID: correlationID, Duplicate: true}, nil
	}
	f.completed = append(f.completed, correlationID)
	return &reconcile.Outcome{CorrelationID: correlationID, Completed: true}, nil
}

func TestGatewayBackfillCompletesSettledCharges(t *testing.T) {
	lister := &fakeChargeLister{charges: []openpix.Charge{
		{CorrelationID: "interbox_judge_a", Status: "COMPLETED", Value: 9900},
		{CorrelationID: "interbox_judge_b", Status: "ACTIVE", Value: 9900},
		{CorrelationID: "interbox_produto_c", Status: "COMPLETED", Value: 5000},
		{CorrelationID: "", Status: "COMPLETED", Value: 100},
	}}
	completer := &fakeCompleter{}

	job, err := NewGatewayBackfillJob(GatewayBackfillJobParams{
		Logger:    testLogger(),
		Gateway:   lister,
		Reconcile: completer,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(completer.completed) != 2 {
		t.Fatalf("expected 2 completions, got %v", completer.completed)
	}
}

func TestGatewayBackfillTreatsDuplicatesAsDone(t *testing.T) {
	lister := &fakeChargeLister{charges: []openpix.Charge{
		{CorrelationID: "interbox_judge_a", Status: "COMPLETED", Value: 9900},
	}}
	completer := &fakeCompleter{duplicate: map[string]bool{"interbox_judge_a": true}}

	job, err := NewGatewayBackfillJob(GatewayBackfillJobParams{
		Logger:    testLogger(),
		Gateway:   lister,
		Reconcile: completer,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("duplicate outcomes are not errors: %v", err)
	}
}

func TestGatewayBackfillContinuesPastFailures(t *testing.T) {
	lister := &fakeChargeLister{charges: []openpix.Charge{
		{CorrelationID: "interbox_judge_a", Status: "COMPLETED", Value: 9900},
		{CorrelationID: "interbox_judge_b", Status: "COMPLETED", Value: 9900},
	}}
	completer := &fakeCompleter{failFor: map[string]error{
		"interbox_judge_a": errors.New("db down"),
	}}

	job, err := NewGatewayBackfillJob(GatewayBackfillJobParams{
		Logger:    testLogger(),
		Gateway:   lister,
		Reconcile: completer,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if len(completer.completed) != 1 || completer.completed[0] != "interbox_judge_b" {
		t.Fatalf("expected the second charge still backfilled, got %v", completer.completed)
	}
}
