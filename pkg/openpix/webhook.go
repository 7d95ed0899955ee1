package openpix

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
)

// Completion event names the gateway emits. TRANSACTION_RECEIVED shows up on
// some accounts instead of CHARGE_COMPLETED for the same settlement, and older
// integrations deliver the dotted charge.confirmed name.
const (
	EventChargeCompleted     = "OPENPIX:CHARGE_COMPLETED"
	EventChargeConfirmed     = "charge.confirmed"
	EventTransactionReceived = "OPENPIX:TRANSACTION_RECEIVED"
	EventChargeExpired       = "OPENPIX:CHARGE_EXPIRED"
)

// WebhookEvent is a parsed gateway callback.
type WebhookEvent struct {
	Event  string
	Charge *Charge
}

// IsCompletion reports whether the event confirms payment. Unrecognized or
// missing event names fall back to the embedded charge status, so a settlement
// under a name this list has never seen still completes.
func (e *WebhookEvent) IsCompletion() bool {
	switch e.Event {
	case EventChargeCompleted, EventChargeConfirmed, EventTransactionReceived:
		return true
	case EventChargeExpired:
		return false
	}
	return e.Charge != nil && e.Charge.Paid()
}

// IsExpiration reports whether the event closes the charge unpaid.
func (e *WebhookEvent) IsExpiration() bool {
	return e.Event == EventChargeExpired
}

// ParseWebhookEvent decodes a gateway callback body. The embedded charge goes
// through the same nesting normalization as the REST responses.
func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var payload struct {
		Event  string          `json:"event"`
		Charge json.RawMessage `json:"charge"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}

	event := &WebhookEvent{Event: payload.Event}
	if len(payload.Charge) > 0 && string(payload.Charge) != "null" {
		charge, err := normalizeCharge(payload.Charge)
		if err != nil {
			return nil, err
		}
		event.Charge = charge
	}

	if event.Charge == nil && event.Event == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload carries no event or charge")
	}
	return event, nil
}

// VerifySignature checks the webhook HMAC when a secret is configured. An
// empty secret disables verification.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	// The gateway sends base64; tolerate hex for older configurations.
	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil {
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	if decoded, err := hex.DecodeString(signature); err == nil {
		return hmac.Equal(decoded, expected)
	}
	return false
}
