package openpix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
)

// Customer identifies the payer on a charge.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	TaxID string `json:"taxID,omitempty"`
}

// ChargeParams is the create-charge request.
type ChargeParams struct {
	CorrelationID  string            `json:"correlationID"`
	Value          int               `json:"value"`
	Comment        string            `json:"comment,omitempty"`
	ExpiresIn      int               `json:"expiresIn,omitempty"`
	Customer       Customer          `json:"customer"`
	AdditionalInfo map[string]string `json:"-"`
}

// Charge is the flat, canonical shape of a gateway charge. All provider
// nesting is unwrapped before a Charge leaves this package.
type Charge struct {
	CorrelationID string    `json:"correlationID"`
	ProviderID    string    `json:"providerID,omitempty"`
	Status        string    `json:"status"`
	Value         int       `json:"value"`
	BRCode        string    `json:"brCode,omitempty"`
	QRCodeImage   string    `json:"qrCodeImage,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
}

// Paid reports whether the gateway considers the charge settled.
func (c Charge) Paid() bool {
	return c.Status == "COMPLETED"
}

type additionalInfoEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type createChargeRequest struct {
	ChargeParams
	AdditionalInfo []additionalInfoEntry `json:"additionalInfo,omitempty"`
}

// CreateCharge registers a new PIX charge with the gateway.
func (c *Client) CreateCharge(ctx context.Context, params ChargeParams) (*Charge, error) {
	if params.CorrelationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation id is required")
	}
	if params.Value <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge value must be positive")
	}
	if params.Customer.Name == "" || params.Customer.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name and email are required")
	}

	req := createChargeRequest{ChargeParams: params}
	for key, value := range params.AdditionalInfo {
		req.AdditionalInfo = append(req.AdditionalInfo, additionalInfoEntry{Key: key, Value: value})
	}

	c.log(ctx, "request", "create_charge", map[string]any{
		"correlation_id": params.CorrelationID,
		"value":          params.Value,
	})

	raw, err := c.doRequest(ctx, http.MethodPost, "/api/v1/charge", c.appID, req)
	if err != nil {
		c.log(ctx, "error", "create_charge", map[string]any{"error": err.Error()})
		return nil, err
	}

	charge, err := normalizeCharge(raw)
	if err != nil {
		c.log(ctx, "error", "create_charge", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "create_charge", map[string]any{
		"correlation_id": charge.CorrelationID,
		"status":         charge.Status,
	})
	return charge, nil
}

// GetCharge fetches the current state of a charge. An id the gateway has
// never seen maps to CodeNotFound; callers treat that as "unknown", not as a
// hard failure.
func (c *Client) GetCharge(ctx context.Context, correlationID string) (*Charge, error) {
	if correlationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation id is required")
	}

	path := "/api/v1/charge/" + url.PathEscape(correlationID)
	raw, err := c.doRequest(ctx, http.MethodGet, path, c.appID, nil)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			c.log(ctx, "error", "get_charge", map[string]any{"error": err.Error()})
		}
		return nil, err
	}

	charge, err := normalizeCharge(raw)
	if err != nil {
		c.log(ctx, "error", "get_charge", map[string]any{"error": err.Error()})
		return nil, err
	}
	return charge, nil
}

// ListCharges bulk-fetches charges created in the last sinceDays days. Used
// only by backfill sweeps, never on the hot path.
func (c *Client) ListCharges(ctx context.Context, sinceDays int) ([]Charge, error) {
	if sinceDays <= 0 {
		sinceDays = 1
	}
	start := time.Now().UTC().Add(-time.Duration(sinceDays) * 24 * time.Hour)
	path := "/api/v1/charge?start=" + url.QueryEscape(start.Format(time.RFC3339))

	raw, err := c.doRequest(ctx, http.MethodGet, path, c.appID, nil)
	if err != nil {
		c.log(ctx, "error", "list_charges", map[string]any{"error": err.Error()})
		return nil, err
	}

	var payload struct {
		Charges []json.RawMessage `json:"charges"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode charge list")
	}

	charges := make([]Charge, 0, len(payload.Charges))
	for _, entry := range payload.Charges {
		charge, err := normalizeCharge(entry)
		if err != nil {
			return nil, err
		}
		charges = append(charges, *charge)
	}
	return charges, nil
}

// chargeNode mirrors the provider response shape. Some flows wrap the real
// object one level deep, others two (charge.charge); the node is recursive so
// unwrapping handles both.
type chargeNode struct {
	Charge *chargeNode `json:"charge"`

	CorrelationID string `json:"correlationID"`
	Identifier    string `json:"identifier"`
	TransactionID string `json:"transactionID"`
	Status        string `json:"status"`
	Value         int    `json:"value"`
	BRCode        string `json:"brCode"`
	PaymentLink   string `json:"paymentLinkUrl"`
	QRCodeImage   string `json:"qrCodeImage"`
	CreatedAt     string `json:"createdAt"`
}

// normalizeCharge is the single place that knows about provider nesting.
// Everything above this package sees the flat Charge type only.
func normalizeCharge(raw []byte) (*Charge, error) {
	var node chargeNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway charge")
	}

	payload := &node
	for payload.Charge != nil {
		payload = payload.Charge
	}

	if payload.CorrelationID == "" && payload.Status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway charge payload is empty")
	}

	charge := &Charge{
		CorrelationID: payload.CorrelationID,
		Status:        normalizeStatus(payload.Status),
		Value:         payload.Value,
		BRCode:        payload.BRCode,
		QRCodeImage:   payload.QRCodeImage,
	}

	switch {
	case payload.Identifier != "":
		charge.ProviderID = payload.Identifier
	case payload.TransactionID != "":
		charge.ProviderID = payload.TransactionID
	}

	if payload.CreatedAt != "" {
		if created, err := time.Parse(time.RFC3339, payload.CreatedAt); err == nil {
			charge.CreatedAt = created
		}
	}
	return charge, nil
}

// normalizeStatus folds the provider's paid-status synonyms into COMPLETED.
func normalizeStatus(status string) string {
	switch strings.ToUpper(status) {
	case "COMPLETED", "CONFIRMED", "PAID":
		return "COMPLETED"
	case "EXPIRED":
		return "EXPIRED"
	case "ACTIVE", "CREATED":
		return "ACTIVE"
	case "":
		return "ACTIVE"
	default:
		return strings.ToUpper(status)
	}
}
