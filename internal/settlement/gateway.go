package settlement

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	pkgstripe "github.com/angelmondragon/teamcart-backend/pkg/stripe"
)

// IntentRequest asks the gateway for a payment intent covering one member's
// share.
type IntentRequest struct {
	CartID         uuid.UUID
	MemberID       uuid.UUID
	PaymentID      uuid.UUID
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// Intent is the gateway's answer: the reference later echoed by webhooks and
// the handle the client uses to complete payment.
type Intent struct {
	Reference    string
	ClientSecret string
	// Canceled intents can no longer be confirmed by the client.
	Canceled bool
}

// Gateway creates payment intents and looks up ones already created.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, reference string) (*Intent, error)
}

type stripeGateway struct {
	api *stripe.Client
}

// NewStripeGateway returns a Gateway backed by Stripe payment intents.
func NewStripeGateway(client *pkgstripe.Client) Gateway {
	if client == nil || client.API() == nil {
		return nil
	}
	return newStripeGateway(client.API())
}

func newStripeGateway(api *stripe.Client) *stripeGateway {
	return &stripeGateway{api: api}
}

func (g *stripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("team_cart_id", req.CartID.String())
	params.AddMetadata("member_id", req.MemberID.String())
	params.AddMetadata("payment_id", req.PaymentID.String())
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	pi, err := g.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (g *stripeGateway) RetrieveIntent(ctx context.Context, reference string) (*Intent, error) {
	pi, err := g.api.V1PaymentIntents.Retrieve(ctx, reference, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Canceled:     pi.Status == stripe.PaymentIntentStatusCanceled,
	}
}
