package settlement

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
)

// WebhookEvent is a provider callback reduced to what settlement needs.
type WebhookEvent struct {
	ID        string
	Reference string
	Succeeded bool
	Reason    string
}

// ParseStripeEvent verifies the signature and maps payment intent outcomes.
// ok is false for event types settlement does not act on.
func ParseStripeEvent(payload []byte, signature, secret string) (event WebhookEvent, ok bool, err error) {
	if signature == "" {
		return WebhookEvent{}, false, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	raw, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature")
	}
	return mapStripeEvent(raw)
}

func mapStripeEvent(raw stripe.Event) (WebhookEvent, bool, error) {
	var succeeded bool
	switch raw.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		succeeded = true
	case stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		succeeded = false
	default:
		return WebhookEvent{}, false, nil
	}
	if raw.Data == nil {
		return WebhookEvent{}, false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw.Data.Raw, &pi); err != nil {
		return WebhookEvent{}, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if pi.ID == "" {
		return WebhookEvent{}, false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	event := WebhookEvent{ID: raw.ID, Reference: pi.ID, Succeeded: succeeded}
	if !succeeded {
		event.Reason = string(raw.Type)
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			event.Reason = fmt.Sprintf("%s: %s", raw.Type, pi.LastPaymentError.Msg)
		}
	}
	return event, true, nil
}
