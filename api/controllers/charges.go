package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/interbox/payments-backend/api/responses"
	"github.com/interbox/payments-backend/api/validators"
	"github.com/interbox/payments-backend/internal/charges"
	"github.com/interbox/payments-backend/pkg/enums"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
)

type createChargeRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=registration-judge registration-staff registration-audiovisual product-purchase"`
	Customer struct {
		Name  string `json:"name" validate:"required,min=2,max=120"`
		Email string `json:"email" validate:"required,email"`
		Phone string `json:"phone" validate:"omitempty,max=32"`
		TaxID string `json:"tax_id" validate:"omitempty,max=32"`
	} `json:"customer" validate:"required"`
	AmountCents int     `json:"amount_cents" validate:"required,min=1"`
	ProductRef  string  `json:"product_ref" validate:"omitempty,max=120"`
	Variant     *string `json:"variant" validate:"omitempty,max=64"`
	Comment     string  `json:"comment" validate:"omitempty,max=140"`
}

// CreateCharge opens a PIX charge and its pending order.
func CreateCharge(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req createChargeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		kind, err := enums.ParseIntentKind(req.Kind)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid intent kind"))
			return
		}

		view, err := svc.Create(ctx, charges.CreateInput{
			Kind:          kind,
			CustomerName:  req.Customer.Name,
			CustomerEmail: req.Customer.Email,
			CustomerPhone: req.Customer.Phone,
			CustomerTaxID: req.Customer.TaxID,
			ProductRef:    req.ProductRef,
			Variant:       req.Variant,
			AmountCents:   req.AmountCents,
			Comment:       req.Comment,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"charge": view})
	}
}

// GetCharge reports the current state of one charge.
func GetCharge(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		correlationID := chi.URLParam(r, "correlationID")
		view, err := svc.GetCharge(ctx, correlationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"charge": view,
			"status": view.Status,
			"paid":   view.Status == enums.ChargeStatusCompleted,
		})
	}
}
