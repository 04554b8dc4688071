package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
)

const testSecret = "whsec_test"

func signedEvent(t *testing.T, eventType stripe.EventType, pi stripe.PaymentIntent) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(pi)
	require.NoError(t, err)
	payload, err := json.Marshal(&stripe.Event{
		ID:         "evt_test",
		Type:       eventType,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: raw},
	})
	require.NoError(t, err)
	return payload, signatureHeader(payload, testSecret, time.Now().Unix())
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestParseStripeEventSucceeded(t *testing.T) {
	payload, header := signedEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_123"})

	event, ok, err := ParseStripeEvent(payload, header, testSecret)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, WebhookEvent{ID: "evt_test", Reference: "pi_123", Succeeded: true}, event)
}

func TestParseStripeEventFailureCarriesReason(t *testing.T) {
	payload, header := signedEvent(t, stripe.EventTypePaymentIntentPaymentFailed, stripe.PaymentIntent{
		ID:               "pi_456",
		LastPaymentError: &stripe.Error{Msg: "Your card was declined."},
	})

	event, ok, err := ParseStripeEvent(payload, header, testSecret)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, event.Succeeded)
	require.Equal(t, "pi_456", event.Reference)
	require.Contains(t, event.Reason, "Your card was declined.")
}

func TestParseStripeEventIgnoresOtherTypes(t *testing.T) {
	payload, header := signedEvent(t, stripe.EventTypeCustomerSubscriptionCreated, stripe.PaymentIntent{ID: "pi_789"})

	_, ok, err := ParseStripeEvent(payload, header, testSecret)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseStripeEventRejectsBadSignature(t *testing.T) {
	payload, _ := signedEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_123"})

	_, _, err := ParseStripeEvent(payload, "t=1,v1=invalid", testSecret)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, _, err = ParseStripeEvent(payload, "", testSecret)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}
