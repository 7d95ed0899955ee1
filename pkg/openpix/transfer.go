package openpix

import (
	"context"
	"encoding/json"
	"net/http"

	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
)

// TransferParams is one disbursement to a PIX key.
type TransferParams struct {
	Value         int    `json:"value"`
	PixKey        string `json:"pixKey"`
	CorrelationID string `json:"correlationID,omitempty"`
	Comment       string `json:"comment,omitempty"`
}

// Transfer is the gateway record of an executed disbursement.
type Transfer struct {
	TransactionID string `json:"transactionID"`
	EndToEndID    string `json:"endToEndId,omitempty"`
	Status        string `json:"status"`
	Value         int    `json:"value"`
}

type transferEnvelope struct {
	Transaction *Transfer `json:"transaction"`
	Transfer    *Transfer `json:"transfer"`
}

// Transfer disburses value to a PIX key. Uses the Basic credentials, which is
// what the gateway's transfer endpoint accepts.
func (c *Client) Transfer(ctx context.Context, params TransferParams) (*Transfer, error) {
	if params.Value <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer value must be positive")
	}
	if params.PixKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pix key is required")
	}
	if c.clientID == "" || c.clientSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "transfer credentials not configured")
	}

	c.log(ctx, "request", "transfer", map[string]any{
		"value":          params.Value,
		"correlation_id": params.CorrelationID,
	})

	raw, err := c.doRequest(ctx, http.MethodPost, "/api/v1/transfer", c.basicAuthHeader(), params)
	if err != nil {
		c.log(ctx, "error", "transfer", map[string]any{"error": err.Error()})
		return nil, err
	}

	var envelope transferEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transfer response")
	}

	transfer := envelope.Transaction
	if transfer == nil {
		transfer = envelope.Transfer
	}
	if transfer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transfer response payload is empty")
	}

	c.log(ctx, "response", "transfer", map[string]any{
		"transaction_id": transfer.TransactionID,
		"status":         transfer.Status,
	})
	return transfer, nil
}
