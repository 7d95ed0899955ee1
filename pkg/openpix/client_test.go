package openpix

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/interbox/payments-backend/pkg/config"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.OpenPixConfig{
		BaseURL:      baseURL,
		AppID:        "app-id-test",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestCreateChargeUnwrapsNestedPayload(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/v1/charge" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		// double nesting, as the provider sometimes answers
		w.Write([]byte(`{"charge":{"charge":{"correlationID":"interbox_judge_abc","status":"ACTIVE","value":9900,"brCode":"00020126pix","identifier":"prov-1"}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	charge, err := client.CreateCharge(context.Background(), ChargeParams{
		CorrelationID: "interbox_judge_abc",
		Value:         9900,
		Customer:      Customer{Name: "Ana", Email: "ana@example.com"},
		AdditionalInfo: map[string]string{
			"kind": "registration-judge",
		},
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}

	if gotAuth != "app-id-test" {
		t.Fatalf("expected AppID auth header, got %q", gotAuth)
	}
	info, ok := gotBody["additionalInfo"].([]any)
	if !ok || len(info) != 1 {
		t.Fatalf("expected additionalInfo key/value array, got %v", gotBody["additionalInfo"])
	}
	if charge.CorrelationID != "interbox_judge_abc" || charge.BRCode != "00020126pix" {
		t.Fatalf("charge not unwrapped: %+v", charge)
	}
	if charge.ProviderID != "prov-1" {
		t.Fatalf("identifier not mapped to provider id: %+v", charge)
	}
}

func TestCreateChargeValidation(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")

	_, err := client.CreateCharge(context.Background(), ChargeParams{Value: 100, Customer: Customer{Name: "Ana", Email: "a@b.c"}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing correlation id, got %v", err)
	}
	_, err = client.CreateCharge(context.Background(), ChargeParams{CorrelationID: "x", Value: 0, Customer: Customer{Name: "Ana", Email: "a@b.c"}})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for zero value, got %v", err)
	}
}

func TestGetChargeStatusNormalization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"charge":{"correlationID":"interbox_judge_abc","status":"CONFIRMED","value":9900,"transactionID":"txn-9"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	charge, err := client.GetCharge(context.Background(), "interbox_judge_abc")
	if err != nil {
		t.Fatalf("get charge: %v", err)
	}
	if charge.Status != "COMPLETED" || !charge.Paid() {
		t.Fatalf("CONFIRMED should normalize to COMPLETED, got %q", charge.Status)
	}
	if charge.ProviderID != "txn-9" {
		t.Fatalf("transactionID not mapped, got %+v", charge)
	}
}

func TestGetChargeUnknownIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"charge not found"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.GetCharge(context.Background(), "interbox_judge_missing")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestTransferUsesBasicAuth(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/v1/transfer" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"transaction":{"transactionID":"txn-1","status":"CONFIRMED","value":3000}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	transfer, err := client.Transfer(context.Background(), TransferParams{
		Value:         3000,
		PixKey:        "fornecedor@interbox.com.br",
		CorrelationID: "interbox_produto_x_1_split_0",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("client-id:client-secret"))
	if gotAuth != expected {
		t.Fatalf("expected basic credentials, got %q", gotAuth)
	}
	if transfer.TransactionID != "txn-1" {
		t.Fatalf("unexpected transfer %+v", transfer)
	}
}

func TestTransferEnvelopeVariants(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transfer":{"transactionID":"txn-2","status":"CONFIRMED","value":7000}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	transfer, err := client.Transfer(context.Background(), TransferParams{Value: 7000, PixKey: "org@interbox.com.br"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if transfer.TransactionID != "txn-2" {
		t.Fatalf("transfer envelope not unwrapped: %+v", transfer)
	}
}

func TestTransferWithoutCredentials(t *testing.T) {
	client, err := NewClient(context.Background(), config.OpenPixConfig{
		BaseURL: "http://127.0.0.1:0",
		AppID:   "app-id-test",
	}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.Transfer(context.Background(), TransferParams{Value: 100, PixKey: "x@y.z"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected UNAUTHORIZED without basic credentials, got %v", err)
	}
}

func TestParseWebhookEvent(t *testing.T) {
	event, err := ParseWebhookEvent([]byte(`{"event":"OPENPIX:CHARGE_COMPLETED","charge":{"correlationID":"interbox_judge_abc","status":"COMPLETED","value":9900}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !event.IsCompletion() || event.IsExpiration() {
		t.Fatalf("expected completion event, got %+v", event)
	}
	if event.Charge == nil || event.Charge.Value != 9900 {
		t.Fatalf("embedded charge not parsed: %+v", event.Charge)
	}

	// dotted event name used by older integrations
	event, err = ParseWebhookEvent([]byte(`{"event":"charge.confirmed","charge":{"correlationID":"interbox_judge_abc","status":"COMPLETED","value":9900}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !event.IsCompletion() {
		t.Fatal("charge.confirmed should count as completion")
	}

	// unknown event name with a paid embedded charge
	event, err = ParseWebhookEvent([]byte(`{"event":"OPENPIX:CHARGE_SETTLED","charge":{"correlationID":"interbox_judge_abc","status":"COMPLETED"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !event.IsCompletion() {
		t.Fatal("paid charge under an unknown event name should count as completion")
	}

	// status-only payload without an event name
	event, err = ParseWebhookEvent([]byte(`{"charge":{"correlationID":"interbox_judge_abc","status":"PAID"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !event.IsCompletion() {
		t.Fatal("paid charge without event name should count as completion")
	}

	if _, err := ParseWebhookEvent([]byte(`{}`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty payload, got %v", err)
	}
	if _, err := ParseWebhookEvent([]byte(`{nope`)); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for malformed payload, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"OPENPIX:CHARGE_COMPLETED"}`)
	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !VerifySignature("whsec", body, sig) {
		t.Fatal("valid base64 signature rejected")
	}
	if VerifySignature("whsec", body, "bm9wZQ==") {
		t.Fatal("wrong signature accepted")
	}
	if VerifySignature("whsec", body, "") {
		t.Fatal("missing signature accepted when secret configured")
	}
	if !VerifySignature("", body, "") {
		t.Fatal("empty secret should disable verification")
	}
}
