package webhooks

import (
	"io"
	"net/http"

	"github.com/interbox/payments-backend/api/responses"
	"github.com/interbox/payments-backend/internal/reconcile"
	pkgerrors "github.com/interbox/payments-backend/pkg/errors"
	"github.com/interbox/payments-backend/pkg/logger"
	"github.com/interbox/payments-backend/pkg/openpix"
)

const signatureHeader = "X-Webhook-Signature"

// OpenPixWebhook receives gateway callbacks for charge settlement and expiry.
// Once a payload parses, the answer is always 200: the gateway retries on any
// other status, and the conditional order update already makes redelivery
// harmless. Reconciliation failures are logged for the cron sweep to repair.
func OpenPixWebhook(svc reconcile.Service, webhookSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if !openpix.VerifySignature(webhookSecret, payload, r.Header.Get(signatureHeader)) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch"))
			return
		}

		event, err := openpix.ParseWebhookEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := svc.HandleEvent(ctx, event)
		if err != nil {
			if logg != nil {
				logg.Error(logg.WithField(ctx, "event", event.Event), "webhook reconciliation failed", err)
			}
			responses.WriteSuccess(w, map[string]any{"received": true, "processed": false})
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"received":  true,
			"processed": outcome.Completed,
			"duplicate": outcome.Duplicate,
			"ignored":   outcome.Ignored,
		})
	}
}
