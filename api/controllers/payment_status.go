package controllers

import (
	"net/http"

	"github.com/interbox/payments-backend/api/responses"
	"github.com/interbox/payments-backend/api/validators"
	"github.com/interbox/payments-backend/internal/charges"
	"github.com/interbox/payments-backend/pkg/logger"
)

// PaymentStatus reports the combined charge/order state. The id may be a
// correlation id or an order id; the ledger answers when the relational
// store does not.
func PaymentStatus(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id := r.URL.Query().Get("correlation_id")
		if id == "" {
			var err error
			id, err = validators.RequireQuery(r, "identifier")
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		view, err := svc.PaymentStatus(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
