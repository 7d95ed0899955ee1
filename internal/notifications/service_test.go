package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/interbox/payments-backend/pkg/config"
	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
	"github.com/interbox/payments-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "notifications-test"})
}

func paidOrder() *models.Order {
	return &models.Order{
		CorrelationID: "interbox_produto_camiseta_1",
		Kind:          enums.IntentKindProductPurchase,
		ProductRef:    "camiseta",
		CustomerEmail: "ana@example.com",
		AmountCents:   10050,
		Status:        enums.OrderStatusPaid,
	}
}

func TestPaymentConfirmedSendsMail(t *testing.T) {
	var captured mailSendRequest
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding mail request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	svc, err := NewService(config.SendgridConfig{
		APIKey:      "sg-key",
		DefaultFrom: "pagamentos@interbox.com.br",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	svc.sendURL = server.URL

	if err := svc.PaymentConfirmed(context.Background(), paidOrder()); err != nil {
		t.Fatalf("PaymentConfirmed failed: %v", err)
	}

	if authHeader != "Bearer sg-key" {
		t.Fatalf("unexpected auth header %q", authHeader)
	}
	if len(captured.Personalizations) != 1 || captured.Personalizations[0].To[0].Email != "ana@example.com" {
		t.Fatalf("unexpected recipient %+v", captured.Personalizations)
	}
	if captured.From.Email != "pagamentos@interbox.com.br" {
		t.Fatalf("unexpected sender %+v", captured.From)
	}
	if captured.Subject == "" || len(captured.Content) != 1 {
		t.Fatalf("unexpected mail body %+v", captured)
	}
}

func TestPaymentConfirmedWithoutAPIKeyIsNoop(t *testing.T) {
	svc, err := NewService(config.SendgridConfig{}, testLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	// No server configured: a send attempt would fail loudly.
	if err := svc.PaymentConfirmed(context.Background(), paidOrder()); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestPaymentConfirmedUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad key"}]}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	svc, err := NewService(config.SendgridConfig{APIKey: "bad", DefaultFrom: "x@y"}, testLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	svc.sendURL = server.URL

	if err := svc.PaymentConfirmed(context.Background(), paidOrder()); err == nil {
		t.Fatal("expected error for upstream rejection")
	}
}

func TestConfirmationContentByKind(t *testing.T) {
	subject, body := confirmationContent(paidOrder())
	if subject != "Pagamento confirmado" || body == "" {
		t.Fatalf("unexpected product content %q / %q", subject, body)
	}

	registration := paidOrder()
	registration.Kind = enums.IntentKindRegistrationJudge
	subject, _ = confirmationContent(registration)
	if subject != "Inscrição confirmada" {
		t.Fatalf("unexpected registration subject %q", subject)
	}
}
