package controllers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/interbox/payments-backend/api/responses"
	"github.com/interbox/payments-backend/api/validators"
	"github.com/interbox/payments-backend/internal/splits"
	"github.com/interbox/payments-backend/pkg/db/models"
	"github.com/interbox/payments-backend/pkg/enums"
	"github.com/interbox/payments-backend/pkg/logger"
)

type splitRequest struct {
	TransactionID    string `json:"transaction_id" validate:"omitempty,max=120"`
	CorrelationID    string `json:"correlation_id" validate:"required,max=160"`
	TotalAmountCents int    `json:"total_amount_cents" validate:"required,min=1"`
	ProductID        string `json:"product_id" validate:"omitempty,max=120"`
	Category         string `json:"category" validate:"omitempty,oneof=produto inscricao"`
	Force            bool   `json:"force"`
}

type splitResponse struct {
	Splits []splits.Outcome `json:"splits"`
	Errors []string         `json:"errors"`
}

// OrderFinder resolves an order by its gateway correlation id.
type OrderFinder interface {
	FindOrderByCorrelationID(ctx context.Context, correlationID string) (*models.Order, error)
}

// ProcessSplit runs the disbursement engine for one order, typically as a
// manual replay after a partial failure. Partial success answers 207 with
// per-recipient detail.
func ProcessSplit(svc splits.Service, finder OrderFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req splitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := finder.FindOrderByCorrelationID(ctx, req.CorrelationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var amountMismatch string
		if order != nil && req.TotalAmountCents != order.AmountCents {
			// The stored amount wins, but the caller should see the drift.
			amountMismatch = fmt.Sprintf("requested total %d differs from stored order amount %d", req.TotalAmountCents, order.AmountCents)
		}
		if order == nil {
			// Legacy callers split transactions the relational store never
			// saw; a transient order built from the request still works.
			order = &models.Order{
				ID:            uuid.New(),
				CorrelationID: req.CorrelationID,
				Kind:          kindForCategory(req.Category),
				ProductRef:    req.ProductID,
				AmountCents:   req.TotalAmountCents,
				Status:        enums.OrderStatusPaid,
			}
		}

		result, err := svc.Process(ctx, order, req.Force)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload := splitResponse{Splits: result.Outcomes, Errors: []string{}}
		if amountMismatch != "" {
			payload.Errors = append(payload.Errors, amountMismatch)
		}
		if !result.Skipped {
			if v := splits.Validate(result.Outcomes, order.AmountCents); !v.Valid {
				payload.Errors = append(payload.Errors, v.Issues...)
			}
		} else {
			payload.Errors = append(payload.Errors, "skipped: "+result.Reason)
		}

		status := http.StatusOK
		if result.Failed() > 0 {
			status = http.StatusMultiStatus
		}
		responses.WriteSuccessStatus(w, status, payload)
	}
}

func kindForCategory(category string) enums.IntentKind {
	if category == "inscricao" {
		return enums.IntentKindRegistrationJudge
	}
	return enums.IntentKindProductPurchase
}
