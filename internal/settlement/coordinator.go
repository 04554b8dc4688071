// Package settlement collects each member's share of a locked team cart,
// either as a cash-on-delivery commitment or an online payment confirmed by
// the gateway's webhook.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/pkg/db/models"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/logger"
	"github.com/angelmondragon/teamcart-backend/pkg/metrics"
)

const defaultGatewayTimeout = 10 * time.Second

// EventGuard deduplicates provider callbacks by event id.
type EventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// OnlinePayment is returned to the member who initiated a payment.
type OnlinePayment struct {
	Payment      teamcart.PaymentView `json:"payment"`
	ClientSecret string               `json:"client_secret"`
}

type Coordinator interface {
	CommitCashOnDelivery(ctx context.Context, cartID uuid.UUID, actor teamcart.Actor) (*teamcart.PaymentView, error)
	InitiateOnlinePayment(ctx context.Context, cartID uuid.UUID, actor teamcart.Actor) (*OnlinePayment, error)
	HandlePaymentWebhook(ctx context.Context, event WebhookEvent) error
	IsFullySettled(ctx context.Context, cartID uuid.UUID) (bool, error)
}

type Config struct {
	Executor       *teamcart.Executor
	Gateway        Gateway
	Guard          EventGuard
	GatewayTimeout time.Duration
	Metrics        *metrics.TeamCartMetrics
	Logger         *logger.Logger
}

type coordinator struct {
	exec    *teamcart.Executor
	gateway Gateway
	guard   EventGuard
	timeout time.Duration
	metrics *metrics.TeamCartMetrics
	logg    *logger.Logger
}

func NewCoordinator(cfg Config) (Coordinator, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("event guard required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &coordinator{
		exec:    cfg.Executor,
		gateway: cfg.Gateway,
		guard:   cfg.Guard,
		timeout: timeout,
		metrics: cfg.Metrics,
		logg:    cfg.Logger,
	}, nil
}

func (c *coordinator) CommitCashOnDelivery(ctx context.Context, cartID uuid.UUID, actor teamcart.Actor) (*teamcart.PaymentView, error) {
	var row models.TeamCartMemberPayment
	_, err := c.exec.Execute(ctx, teamcart.Mutation{
		Kind:   teamcart.CommandCommitCashOnDelivery,
		CartID: cartID,
		Apply: func(_ context.Context, cart *teamcart.Cart, now time.Time) error {
			var err error
			row, err = cart.CommitCashOnDelivery(now, actor)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	view := teamcart.NewPaymentView(row)
	return &view, nil
}

// InitiateOnlinePayment reads the member's row, calls the gateway outside any
// transaction and then records the outcome with a second versioned write.
func (c *coordinator) InitiateOnlinePayment(ctx context.Context, cartID uuid.UUID, actor teamcart.Actor) (*OnlinePayment, error) {
	ctx = c.logg.WithFields(ctx, map[string]any{"cart_id": cartID.String(), "member_id": actor.MemberID.String()})

	var prepared models.TeamCartMemberPayment
	_, err := c.exec.Execute(ctx, teamcart.Mutation{
		Kind:   teamcart.CommandInitiateOnlinePayment,
		CartID: cartID,
		Apply: func(_ context.Context, cart *teamcart.Cart, _ time.Time) error {
			var err error
			prepared, err = cart.PrepareOnlinePayment(actor)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	if prepared.Status == enums.PaymentStatusPending && prepared.ExternalReference != nil {
		return c.resumeIntent(ctx, cartID, prepared)
	}

	intent, gwErr := c.createIntent(ctx, cartID, prepared)
	if gwErr != nil {
		c.recordFailure(ctx, cartID, prepared, gwErr)
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalFailure, gwErr, "payment gateway unavailable")
	}

	var attached models.TeamCartMemberPayment
	_, err = c.exec.Execute(ctx, teamcart.Mutation{
		Kind:   teamcart.CommandInitiateOnlinePayment,
		CartID: cartID,
		Apply: func(_ context.Context, cart *teamcart.Cart, now time.Time) error {
			var err error
			attached, err = cart.AttachPaymentReference(now, prepared, intent.Reference)
			return err
		},
	})
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "reference", intent.Reference), "payment intent abandoned: "+err.Error())
		return nil, err
	}
	c.logg.Info(c.logg.WithField(ctx, "reference", intent.Reference), "online payment initiated")
	return &OnlinePayment{
		Payment:      teamcart.NewPaymentView(attached),
		ClientSecret: intent.ClientSecret,
	}, nil
}

// resumeIntent hands back the live intent of a pending row instead of
// minting a second one.
func (c *coordinator) resumeIntent(ctx context.Context, cartID uuid.UUID, row models.TeamCartMemberPayment) (*OnlinePayment, error) {
	reference := *row.ExternalReference
	ctx = c.logg.WithField(ctx, "reference", reference)
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	intent, err := c.gateway.RetrieveIntent(callCtx, reference)
	if err == nil && (intent == nil || intent.Reference != reference) {
		err = errors.New("gateway returned a different intent")
	}
	if err != nil {
		c.logg.Error(ctx, "payment intent lookup failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalFailure, err, "payment gateway unavailable")
	}
	if intent.Canceled {
		c.recordFailure(ctx, cartID, row, errors.New("payment intent canceled"))
		return nil, pkgerrors.New(pkgerrors.CodeExternalFailure, "payment intent was canceled, initiate the payment again")
	}
	c.logg.Info(ctx, "online payment resumed")
	return &OnlinePayment{
		Payment:      teamcart.NewPaymentView(row),
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (c *coordinator) createIntent(ctx context.Context, cartID uuid.UUID, row models.TeamCartMemberPayment) (*Intent, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// a failed row was touched, so re-initiation gets a fresh key and intent
	key := fmt.Sprintf("teamcart-%s-%d", row.ID, row.UpdatedAt.UnixNano())
	started := time.Now()
	intent, err := c.gateway.CreateIntent(callCtx, IntentRequest{
		CartID:         cartID,
		MemberID:       row.MemberID,
		PaymentID:      row.ID,
		AmountCents:    row.AmountCents,
		Currency:       row.Currency,
		IdempotencyKey: key,
	})
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		outcome = "timeout"
		if err == nil {
			err = context.DeadlineExceeded
		}
	case err != nil:
		outcome = "error"
	case intent == nil || intent.Reference == "":
		outcome = "error"
		err = errors.New("gateway returned no reference")
	}
	c.metrics.ObserveGateway(outcome, time.Since(started))
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func (c *coordinator) recordFailure(ctx context.Context, cartID uuid.UUID, prepared models.TeamCartMemberPayment, cause error) {
	c.logg.Error(ctx, "payment gateway call failed", cause)
	_, err := c.exec.Execute(ctx, teamcart.Mutation{
		Kind:   teamcart.CommandInitiateOnlinePayment,
		CartID: cartID,
		Apply: func(_ context.Context, cart *teamcart.Cart, now time.Time) error {
			cart.FailPaymentAttempt(now, prepared, cause.Error())
			return nil
		},
	})
	if err != nil {
		c.logg.Error(ctx, "record failed payment attempt", err)
	}
}

// HandlePaymentWebhook applies a gateway outcome once per event id. Unknown
// references and carts that are no longer locked are acknowledged without
// effect so the provider stops redelivering.
func (c *coordinator) HandlePaymentWebhook(ctx context.Context, event WebhookEvent) error {
	if event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if event.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	ctx = c.logg.WithFields(ctx, map[string]any{"event_id": event.ID, "reference": event.Reference})

	claimed, err := c.guard.Claim(ctx, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if !claimed {
		c.logg.Info(ctx, "duplicate payment webhook ignored")
		return nil
	}

	if err := c.applyOutcome(ctx, event); err != nil {
		if releaseErr := c.guard.Release(ctx, event.ID); releaseErr != nil {
			c.logg.Error(ctx, "release idempotency claim", releaseErr)
		}
		return err
	}
	return nil
}

func (c *coordinator) applyOutcome(ctx context.Context, event WebhookEvent) error {
	cartID, err := c.exec.Store().FindCartIDByPaymentReference(ctx, event.Reference)
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		c.logg.Warn(ctx, "payment webhook for unknown reference ignored")
		return nil
	}
	if err != nil {
		return err
	}
	ctx = c.logg.WithField(ctx, "cart_id", cartID.String())

	applied := false
	_, err = c.exec.Execute(ctx, teamcart.Mutation{
		Kind:   teamcart.CommandPaymentWebhook,
		CartID: cartID,
		Apply: func(_ context.Context, cart *teamcart.Cart, now time.Time) error {
			applied = cart.ApplyGatewayOutcome(now, event.Reference, event.Succeeded, event.Reason)
			return nil
		},
	})
	if pkgerrors.HasCode(err, pkgerrors.CodeExpired) {
		c.logg.Warn(ctx, "payment webhook arrived after the cart expired")
		return nil
	}
	if err != nil {
		return err
	}
	if !applied {
		c.logg.Info(ctx, "payment webhook had no effect")
	}
	return nil
}

func (c *coordinator) IsFullySettled(ctx context.Context, cartID uuid.UUID) (bool, error) {
	cart, err := c.exec.Store().Load(ctx, cartID)
	if err != nil {
		return false, err
	}
	return cart.IsFullySettled(), nil
}
