package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/teamcart-backend/api/responses"
	"github.com/angelmondragon/teamcart-backend/internal/settlement"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
)

const maxWebhookBody = 1 << 16

type paymentWebhookHandler interface {
	HandlePaymentWebhook(ctx context.Context, event settlement.WebhookEvent) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies and applies payment intent outcomes. Event types
// settlement does not act on are acknowledged without processing.
func StripeWebhook(svc paymentWebhookHandler, client stripeClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		event, ok, err := settlement.ParseStripeEvent(payload, r.Header.Get("Stripe-Signature"), client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !ok {
			responses.WriteSuccess(w, nil)
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{"event_id": event.ID, "reference": event.Reference})
		if err := svc.HandlePaymentWebhook(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		logg.Info(ctx, "payment webhook processed")
		responses.WriteSuccess(w, nil)
	}
}
