package settlement_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/teamcart-backend/internal/idempotency"
	"github.com/angelmondragon/teamcart-backend/internal/settlement"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart"
	"github.com/angelmondragon/teamcart-backend/internal/teamcart/teamcarttest"
	"github.com/angelmondragon/teamcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/teamcart-backend/pkg/errors"
	"github.com/angelmondragon/teamcart-backend/pkg/money"
	"github.com/angelmondragon/teamcart-backend/pkg/redis"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    []settlement.IntentRequest
	lookups  []string
	canceled map[string]bool
	err      error
	block    bool
}

func (g *fakeGateway) CreateIntent(ctx context.Context, req settlement.IntentRequest) (*settlement.Intent, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	n, err, block := len(g.calls), g.err, g.block
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &settlement.Intent{
		Reference:    fmt.Sprintf("pi_%d", n),
		ClientSecret: fmt.Sprintf("pi_%d_secret", n),
	}, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, reference string) (*settlement.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups = append(g.lookups, reference)
	if g.err != nil {
		return nil, g.err
	}
	return &settlement.Intent{
		Reference:    reference,
		ClientSecret: reference + "_secret",
		Canceled:     g.canceled[reference],
	}, nil
}

func (g *fakeGateway) cancel(reference string) {
	g.mu.Lock()
	if g.canceled == nil {
		g.canceled = map[string]bool{}
	}
	g.canceled[reference] = true
	g.mu.Unlock()
}

func (g *fakeGateway) set(err error, block bool) {
	g.mu.Lock()
	g.err, g.block = err, block
	g.mu.Unlock()
}

type fixture struct {
	env     *teamcarttest.Env
	gateway *fakeGateway
	guard   *idempotency.Guard
	coord   settlement.Coordinator
	party   teamcarttest.Party
}

func newFixture(t *testing.T, opts teamcarttest.Options) *fixture {
	t.Helper()
	env := teamcarttest.New(t, opts)

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	guard, err := idempotency.NewGuard(redis.NewFromRaw(raw), time.Hour, "payment-webhook")
	require.NoError(t, err)

	gateway := &fakeGateway{}
	coord, err := settlement.NewCoordinator(settlement.Config{
		Executor:       env.Executor,
		Gateway:        gateway,
		Guard:          guard,
		GatewayTimeout: 50 * time.Millisecond,
		Logger:         env.Logger,
	})
	require.NoError(t, err)

	return &fixture{
		env:     env,
		gateway: gateway,
		guard:   guard,
		coord:   coord,
		party:   env.LockedScenario(t, nil),
	}
}

func countEvents(events []enums.OutboxEventType, want enums.OutboxEventType) int {
	n := 0
	for _, e := range events {
		if e == want {
			n++
		}
	}
	return n
}

func TestCashOnDeliveryCommitsRows(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	ctx := context.Background()
	ana, ben := f.party.Guests[0], f.party.Guests[1]

	row, err := f.coord.CommitCashOnDelivery(ctx, f.party.CartID, ana)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCommitted, row.Status)
	require.Equal(t, enums.PaymentMethodCashOnDelivery, *row.Method)
	require.Equal(t, money.New(945, "USD"), row.Amount)

	settled, err := f.coord.IsFullySettled(ctx, f.party.CartID)
	require.NoError(t, err)
	require.False(t, settled)

	_, err = f.coord.CommitCashOnDelivery(ctx, f.party.CartID, ana)
	require.Equal(t, pkgerrors.CodeInvalidState, pkgerrors.CodeOf(err))

	_, err = f.coord.CommitCashOnDelivery(ctx, f.party.CartID, ben)
	require.NoError(t, err)
	settled, err = f.coord.IsFullySettled(ctx, f.party.CartID)
	require.NoError(t, err)
	require.True(t, settled)

	// the host contributed nothing and owes nothing
	_, err = f.coord.CommitCashOnDelivery(ctx, f.party.CartID, f.party.Host)
	require.Equal(t, pkgerrors.CodeInvalidState, pkgerrors.CodeOf(err))
}

func TestSettlementRequiresLockedCart(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	open := f.env.CreateParty(t, nil, "Ana")
	f.env.AddItem(t, open, open.Guests[0], f.env.Burger.ID, 1)

	_, err := f.coord.CommitCashOnDelivery(context.Background(), open.CartID, open.Guests[0])
	require.Equal(t, pkgerrors.CodeInvalidState, pkgerrors.CodeOf(err))
	_, err = f.coord.InitiateOnlinePayment(context.Background(), open.CartID, open.Guests[0])
	require.Equal(t, pkgerrors.CodeInvalidState, pkgerrors.CodeOf(err))
	require.Empty(t, f.gateway.calls)
}

func TestOnlinePaymentConfirmedByWebhookOnce(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	ctx := context.Background()
	ana := f.party.Guests[0]

	payment, err := f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ana)
	require.NoError(t, err)
	require.Equal(t, "pi_1_secret", payment.ClientSecret)
	require.Equal(t, enums.PaymentStatusPending, payment.Payment.Status)
	require.Equal(t, "pi_1", *payment.Payment.ExternalReference)
	require.Len(t, f.gateway.calls, 1)
	require.Equal(t, int64(945), f.gateway.calls[0].AmountCents)
	require.Equal(t, "USD", f.gateway.calls[0].Currency)

	// settlement has started, so the tip can no longer move
	_, err = f.env.Service.Dispatch(ctx, teamcart.ApplyTip{CartID: f.party.CartID, Actor: f.party.Host, Tip: money.New(500, "USD")})
	require.Equal(t, pkgerrors.CodeInvalidState, pkgerrors.CodeOf(err))

	event := settlement.WebhookEvent{ID: "evt_1", Reference: "pi_1", Succeeded: true}
	require.NoError(t, f.coord.HandlePaymentWebhook(ctx, event))
	before := f.env.Load(t, f.party.CartID)
	row, ok := before.PaymentFor(ana.MemberID)
	require.True(t, ok)
	require.Equal(t, enums.PaymentStatusCommitted, row.Status)

	require.NoError(t, f.coord.HandlePaymentWebhook(ctx, event))
	require.NoError(t, f.coord.HandlePaymentWebhook(ctx, settlement.WebhookEvent{ID: "evt_2", Reference: "pi_1", Succeeded: false}))

	after := f.env.Load(t, f.party.CartID)
	require.Equal(t, before.Version(), after.Version())
	row, _ = after.PaymentFor(ana.MemberID)
	require.Equal(t, enums.PaymentStatusCommitted, row.Status)
	require.Equal(t, 1, countEvents(f.env.OutboxEvents(t), enums.EventTeamCartPaymentCommitted))
}

func TestGatewayTimeoutFailsRowAndAllowsRetry(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	ctx := context.Background()
	ben := f.party.Guests[1]

	f.gateway.set(nil, true)
	f.env.Clock.Advance(time.Minute)
	_, err := f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ben)
	require.Equal(t, pkgerrors.CodeExternalFailure, pkgerrors.CodeOf(err))
	require.True(t, pkgerrors.MetadataFor(pkgerrors.CodeExternalFailure).Retryable)

	row, _ := f.env.Load(t, f.party.CartID).PaymentFor(ben.MemberID)
	require.Equal(t, enums.PaymentStatusFailed, row.Status)
	require.Nil(t, row.ExternalReference)
	require.Contains(t, f.env.OutboxEvents(t), enums.EventTeamCartPaymentFailed)

	f.gateway.set(nil, false)
	payment, err := f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ben)
	require.NoError(t, err)
	require.Equal(t, "pi_2", *payment.Payment.ExternalReference)
	require.Equal(t, enums.PaymentStatusPending, payment.Payment.Status)
	require.NotEqual(t, f.gateway.calls[0].IdempotencyKey, f.gateway.calls[1].IdempotencyKey)
}

func TestGatewayErrorReturnsExternalFailure(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	f.gateway.set(errors.New("card network down"), false)

	_, err := f.coord.InitiateOnlinePayment(context.Background(), f.party.CartID, f.party.Guests[0])
	require.Equal(t, pkgerrors.CodeExternalFailure, pkgerrors.CodeOf(err))
	row, _ := f.env.Load(t, f.party.CartID).PaymentFor(f.party.Guests[0].MemberID)
	require.Equal(t, enums.PaymentStatusFailed, row.Status)
}

func TestReinitiatingPendingPaymentResumesLiveIntent(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	ctx := context.Background()
	ana := f.party.Guests[0]

	first, err := f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ana)
	require.NoError(t, err)
	version := f.env.Load(t, f.party.CartID).Version()

	f.env.Clock.Advance(time.Minute)
	again, err := f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ana)
	require.NoError(t, err)
	require.Len(t, f.gateway.calls, 1, "no second intent is minted")
	require.Equal(t, []string{"pi_1"}, f.gateway.lookups)
	require.Equal(t, first.ClientSecret, again.ClientSecret)
	require.Equal(t, "pi_1", *again.Payment.ExternalReference)
	require.Equal(t, version, f.env.Load(t, f.party.CartID).Version())

	// the client confirms the original intent and the row settles
	require.NoError(t, f.coord.HandlePaymentWebhook(ctx, settlement.WebhookEvent{ID: "evt_ok", Reference: "pi_1", Succeeded: true}))
	row, _ := f.env.Load(t, f.party.CartID).PaymentFor(ana.MemberID)
	require.Equal(t, enums.PaymentStatusCommitted, row.Status)
}

func TestCanceledIntentFailsRowForReinitiation(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	ctx := context.Background()
	ben := f.party.Guests[1]

	_, err := f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ben)
	require.NoError(t, err)
	f.gateway.cancel("pi_1")

	f.env.Clock.Advance(time.Minute)
	_, err = f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ben)
	require.Equal(t, pkgerrors.CodeExternalFailure, pkgerrors.CodeOf(err))
	row, _ := f.env.Load(t, f.party.CartID).PaymentFor(ben.MemberID)
	require.Equal(t, enums.PaymentStatusFailed, row.Status)

	f.env.Clock.Advance(time.Minute)
	payment, err := f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ben)
	require.NoError(t, err)
	require.Equal(t, "pi_2", *payment.Payment.ExternalReference)
	require.Len(t, f.gateway.calls, 2)
}

func TestIntentLookupFailureKeepsPendingRow(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	ctx := context.Background()
	ana := f.party.Guests[0]

	_, err := f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ana)
	require.NoError(t, err)
	f.gateway.set(errors.New("stripe unreachable"), false)

	_, err = f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ana)
	require.Equal(t, pkgerrors.CodeExternalFailure, pkgerrors.CodeOf(err))
	row, _ := f.env.Load(t, f.party.CartID).PaymentFor(ana.MemberID)
	require.Equal(t, enums.PaymentStatusPending, row.Status)
	require.Equal(t, "pi_1", *row.ExternalReference)
}

func TestFailedWebhookMarksRowFailed(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	ctx := context.Background()
	ana := f.party.Guests[0]

	_, err := f.coord.InitiateOnlinePayment(ctx, f.party.CartID, ana)
	require.NoError(t, err)
	require.NoError(t, f.coord.HandlePaymentWebhook(ctx, settlement.WebhookEvent{
		ID:        "evt_fail",
		Reference: "pi_1",
		Reason:    "card_declined",
	}))

	row, _ := f.env.Load(t, f.party.CartID).PaymentFor(ana.MemberID)
	require.Equal(t, enums.PaymentStatusFailed, row.Status)
	settled, err := f.coord.IsFullySettled(ctx, f.party.CartID)
	require.NoError(t, err)
	require.False(t, settled)
}

func TestWebhookForUnknownReferenceIsIgnored(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{})
	ctx := context.Background()

	require.NoError(t, f.coord.HandlePaymentWebhook(ctx, settlement.WebhookEvent{ID: "evt_x", Reference: "pi_unknown", Succeeded: true}))
	claimed, err := f.guard.Claim(ctx, "evt_x")
	require.NoError(t, err)
	require.False(t, claimed, "ignored event stays claimed")

	err = f.coord.HandlePaymentWebhook(ctx, settlement.WebhookEvent{Reference: "pi_1"})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

type brokenLookupStore struct {
	teamcart.Store
}

func (brokenLookupStore) FindCartIDByPaymentReference(context.Context, string) (uuid.UUID, error) {
	return uuid.Nil, pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
}

func TestWebhookFailureReleasesClaim(t *testing.T) {
	f := newFixture(t, teamcarttest.Options{
		WrapStore: func(s teamcart.Store) teamcart.Store { return brokenLookupStore{Store: s} },
	})
	ctx := context.Background()

	err := f.coord.HandlePaymentWebhook(ctx, settlement.WebhookEvent{ID: "evt_retry", Reference: "pi_1", Succeeded: true})
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	claimed, err := f.guard.Claim(ctx, "evt_retry")
	require.NoError(t, err)
	require.True(t, claimed, "failed event is released for redelivery")
}

func TestWebhookAfterExpiryIsAcknowledged(t *testing.T) {
	deadline := teamcarttest.Start.Add(30 * time.Minute)
	env := teamcarttest.New(t, teamcarttest.Options{})
	p := env.LockedScenario(t, &deadline)

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	guard, err := idempotency.NewGuard(redis.NewFromRaw(raw), time.Hour, "payment-webhook")
	require.NoError(t, err)
	coord, err := settlement.NewCoordinator(settlement.Config{
		Executor: env.Executor,
		Gateway:  &fakeGateway{},
		Guard:    guard,
		Logger:   env.Logger,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = coord.InitiateOnlinePayment(ctx, p.CartID, p.Guests[0])
	require.NoError(t, err)

	env.Clock.Advance(time.Hour)
	require.NoError(t, coord.HandlePaymentWebhook(ctx, settlement.WebhookEvent{ID: "evt_late", Reference: "pi_1", Succeeded: true}))

	cart := env.Load(t, p.CartID)
	require.Equal(t, enums.TeamCartStatusExpired, cart.Status())
	row, _ := cart.PaymentFor(p.Guests[0].MemberID)
	require.Equal(t, enums.PaymentStatusPending, row.Status)
}
