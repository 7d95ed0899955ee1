package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/interbox/payments-backend/internal/charges"
	"github.com/interbox/payments-backend/pkg/enums"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
)

type testChargesService struct {
	createFn func(ctx context.Context, input charges.CreateInput) (*charges.ChargeView, error)
	getFn    func(ctx context.Context, correlationID string) (*charges.ChargeView, error)
	statusFn func(ctx context.Context, id string) (*charges.StatusView, error)
}

func (s *testChargesService) Create(ctx context.Context, input charges.CreateInput) (*charges.ChargeView, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return nil, nil
}

func (s *testChargesService) GetCharge(ctx context.Context, correlationID string) (*charges.ChargeView, error) {
	if s.getFn != nil {
		return s.getFn(ctx, correlationID)
	}
	return nil, nil
}

func (s *testChargesService) PaymentStatus(ctx context.Context, id string) (*charges.StatusView, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, id)
	}
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestCreateChargeSuccess(t *testing.T) {
	var got charges.CreateInput
	svc := &testChargesService{
		createFn: func(ctx context.Context, input charges.CreateInput) (*charges.ChargeView, error) {
			got = input
			return &charges.ChargeView{
				CorrelationID: "interbox_judge_ab12cd34_1",
				Kind:          input.Kind,
				Status:        enums.ChargeStatusActive,
				AmountCents:   input.AmountCents,
				BRCode:        "00020126pix",
			}, nil
		},
	}

	body := `{"kind":"registration-judge","customer":{"name":"Ana Souza","email":"ana@example.com","tax_id":"123.456.789-09"},"amount_cents":9900}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/charge", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateCharge(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if got.Kind != enums.IntentKindRegistrationJudge {
		t.Fatalf("unexpected kind %q", got.Kind)
	}
	if got.CustomerEmail != "ana@example.com" || got.AmountCents != 9900 {
		t.Fatalf("input not forwarded: %+v", got)
	}

	var envelope struct {
		Data struct {
			Charge charges.ChargeView `json:"charge"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Charge.BRCode != "00020126pix" {
		t.Fatalf("missing qr payload in %s", resp.Body.String())
	}
}

func TestCreateChargeValidation(t *testing.T) {
	cases := map[string]string{
		"missing kind":   `{"customer":{"name":"Ana","email":"ana@example.com"},"amount_cents":9900}`,
		"unknown kind":   `{"kind":"registration-athlete","customer":{"name":"Ana","email":"ana@example.com"},"amount_cents":9900}`,
		"bad email":      `{"kind":"registration-judge","customer":{"name":"Ana","email":"nope"},"amount_cents":9900}`,
		"zero amount":    `{"kind":"registration-judge","customer":{"name":"Ana","email":"ana@example.com"},"amount_cents":0}`,
		"unknown field":  `{"kind":"registration-judge","customer":{"name":"Ana","email":"ana@example.com"},"amount_cents":9900,"surprise":true}`,
		"malformed body": `{"kind":`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			svc := &testChargesService{
				createFn: func(ctx context.Context, input charges.CreateInput) (*charges.ChargeView, error) {
					called = true
					return nil, nil
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/charge", strings.NewReader(body))
			resp := httptest.NewRecorder()
			CreateCharge(svc, testLogger())(resp, req)

			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", resp.Code, resp.Body.String())
			}
			if called {
				t.Fatal("service should not run on invalid input")
			}
		})
	}
}

func TestGetChargeNotFound(t *testing.T) {
	svc := &testChargesService{
		getFn: func(ctx context.Context, correlationID string) (*charges.ChargeView, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "charge not found")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/charge/interbox_judge_missing", nil)
	req = addRouteParam(req, "correlationID", "interbox_judge_missing")
	resp := httptest.NewRecorder()
	GetCharge(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND code, got %s", resp.Body.String())
	}
}

func TestGetChargePaidFlag(t *testing.T) {
	svc := &testChargesService{
		getFn: func(ctx context.Context, correlationID string) (*charges.ChargeView, error) {
			return &charges.ChargeView{
				CorrelationID: correlationID,
				Status:        enums.ChargeStatusCompleted,
				AmountCents:   9900,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/charge/interbox_judge_abc", nil)
	req = addRouteParam(req, "correlationID", "interbox_judge_abc")
	resp := httptest.NewRecorder()
	GetCharge(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Paid   bool   `json:"paid"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data.Paid || envelope.Data.Status != string(enums.ChargeStatusCompleted) {
		t.Fatalf("expected paid COMPLETED view, got %s", resp.Body.String())
	}
}

func TestPaymentStatusAcceptsEitherParam(t *testing.T) {
	svc := &testChargesService{
		statusFn: func(ctx context.Context, id string) (*charges.StatusView, error) {
			return &charges.StatusView{CorrelationID: id, Paid: true, OrderStatus: enums.OrderStatusPaid}, nil
		},
	}

	for _, target := range []string{
		"/api/v1/payments/status?correlation_id=interbox_judge_abc",
		"/api/v1/payments/status?identifier=interbox_judge_abc",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		resp := httptest.NewRecorder()
		PaymentStatus(svc, testLogger())(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: unexpected status %d", target, resp.Code)
		}
	}
}

func TestPaymentStatusMissingParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/status", nil)
	resp := httptest.NewRecorder()
	PaymentStatus(&testChargesService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
